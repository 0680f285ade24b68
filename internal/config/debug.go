package config

import "os"

func IsDebug() bool {
	return os.Getenv("MEMCHAIN_DEBUG") == "1"
}
