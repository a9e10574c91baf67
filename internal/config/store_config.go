package config

import "fmt"

const (
	StoreDriverMemory = "memory"
	StoreDriverBolt   = "bolt"
	StoreDriverMongo  = "mongo"
)

type StoreConfig interface {
	GetStoreDriver() string
	GetBoltPath() string
	GetMongoURI() string
	GetMongoDatabase() string
}

type Store struct {
	Driver        string `env:"STORE_DRIVER" envDefault:"memory"`
	BoltPath      string `env:"BOLT_PATH" envDefault:"./data/auth.db"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"catalog"`
}

var _ StoreConfig = Store{}

func (s Store) GetStoreDriver() string {
	if s.Driver == "" {
		return StoreDriverMemory
	}
	return s.Driver
}

func (s Store) GetBoltPath() string      { return s.BoltPath }
func (s Store) GetMongoURI() string      { return s.MongoURI }
func (s Store) GetMongoDatabase() string { return s.MongoDatabase }

func (s Store) validate() error {
	switch s.GetStoreDriver() {
	case StoreDriverMemory:
		return nil
	case StoreDriverBolt:
		if s.BoltPath == "" {
			return fmt.Errorf("BOLT_PATH is required when STORE_DRIVER=%s", StoreDriverBolt)
		}
		return nil
	case StoreDriverMongo:
		if s.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORE_DRIVER=%s", StoreDriverMongo)
		}
		return nil
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", s.Driver)
	}
}
