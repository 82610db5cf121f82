// Package inmemdb provides map-backed repositories for tests and local hacking.
package inmemdb

import (
	"sync"

	"github.com/elimuconnect/elimu/core/message"
	"github.com/elimuconnect/elimu/core/user"
)

type (
	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	messageTable struct {
		mutex sync.RWMutex
		table map[string]*message.Message
	}

	DB struct {
		user    *userTable
		message *messageTable
	}
)

func NewDB() *DB {
	return &DB{
		user:    &userTable{table: make(map[string]*user.User)},
		message: &messageTable{table: make(map[string]*message.Message)},
	}
}
