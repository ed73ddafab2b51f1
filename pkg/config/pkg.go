package config

var configer Configer = NewDotenvConfig("")

func SetConfig(c Configer) {
	configer = c
}

func GetConfig() Configer {
	return configer
}

func Load() error {
	return configer.Load()
}

// LoadStore loads the package configer and reads the store configuration
// from it.
func LoadStore() (*StoreConfig, error) {
	if err := Load(); err != nil {
		return nil, err
	}

	return LoadStoreConfig(configer)
}
