package config

import (
	"strconv"

	"github.com/apex/log"
)

type Configer interface {
	LoadFromPath(path string) error
	Load() error
	GetKey(key string) string
	MustGetKey(key string) string
	GetKeyWithDefault(key, defaultValue string) string
	GetIntKey(key string) int
	MustGetIntKey(key string) int
	GetIntKeyWithDefault(key string, defaultValue int) int
	GetBoolKeyWithDefault(key string, defaultValue bool) bool
}

// keyGetter implements the typed getters of Configer on top of a function
// returning raw string values. An empty value is a missing key.
type keyGetter struct {
	get func(key string) string
}

func (g keyGetter) GetKey(key string) string {
	return g.get(key)
}

func (g keyGetter) MustGetKey(key string) string {
	val := g.get(key)
	if val == "" {
		log.Fatalf("No such required config key: '%s'", key)
	}

	return val
}

func (g keyGetter) GetKeyWithDefault(key, defaultValue string) string {
	if val := g.get(key); val != "" {
		return val
	}

	return defaultValue
}

func (g keyGetter) GetIntKey(key string) int {
	return g.GetIntKeyWithDefault(key, 0)
}

func (g keyGetter) MustGetIntKey(key string) int {
	intVal, err := strconv.Atoi(g.get(key))
	if err != nil {
		log.Fatalf("Required config key either doesn't exist or isn't an int: '%s': %s", key, err)
	}

	return intVal
}

func (g keyGetter) GetIntKeyWithDefault(key string, defaultValue int) int {
	intVal, err := strconv.Atoi(g.get(key))
	if err != nil {
		return defaultValue
	}

	return intVal
}

func (g keyGetter) GetBoolKeyWithDefault(key string, defaultValue bool) bool {
	boolVal, err := strconv.ParseBool(g.get(key))
	if err != nil {
		return defaultValue
	}

	return boolVal
}
