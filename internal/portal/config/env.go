package config

import (
	"os"
	"strconv"
)

// Exist - возвращает true, если переменная окружения key существует.
func Exist(key string) bool {
	_, exist := os.LookupEnv(key)
	return exist
}

func GetEnv(key string) string {
	val, _ := os.LookupEnv(key)
	return val
}

// GetIntEnv - возвращает числовую переменную. При ошибке разбора возвращается 0.
func GetIntEnv(key string) int {
	v, err := strconv.Atoi(GetEnv(key))
	if err != nil {
		return 0
	}
	return v
}

// GetBoolEnv - возвращает логическую переменную. При ошибке разбора возвращается false.
func GetBoolEnv(key string) bool {
	v, err := strconv.ParseBool(GetEnv(key))
	if err != nil {
		return false
	}
	return v
}
