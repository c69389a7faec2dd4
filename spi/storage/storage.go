/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package storage contains the storage interfaces shared by every registry in the
// framework. Implementations live under pkg/storage.
package storage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStoreNotFound is returned when a store is not found.
	ErrStoreNotFound = errors.New("store not found")

	// ErrDataNotFound is returned when data is not found.
	ErrDataNotFound = errors.New("data not found")

	// ErrDuplicateKey is returned by PutIfAbsent when the key already holds a value.
	ErrDuplicateKey = errors.New("duplicate key")
)

// Tag is a name + optional value associated with a stored key + value pair.
// Tag names and values cannot contain the ':' character, which is reserved by the
// query expression syntax.
type Tag struct {
	// Name can be used to tag a given key + value pair as belonging to a group.
	Name string
	// Value can optionally be used to indicate some state associated with the tag.
	Value string
}

// Provider represents a storage provider.
type Provider interface {
	// OpenStore opens a store with the given name and returns a handle.
	// If the store has never been opened before, then it is created.
	// Store names are not case-sensitive.
	OpenStore(name string) (Store, error)

	// Close closes all stores created under this store provider.
	Close() error
}

// Store represents a storage database.
type Store interface {
	// Put stores the key + value pair along with the (optional) tags, overwriting any
	// existing value under key.
	Put(key string, value []byte, tags ...Tag) error

	// PutIfAbsent stores the key + value pair only if the key holds no value yet and
	// fails with ErrDuplicateKey otherwise. The existence check and the insert are a
	// single atomic operation, so two concurrent PutIfAbsent calls for the same key
	// cannot both succeed.
	PutIfAbsent(key string, value []byte, tags ...Tag) error

	// Get fetches the value associated with the given key.
	// If key cannot be found, then an error wrapping ErrDataNotFound must be returned.
	Get(key string) ([]byte, error)

	// GetTags fetches all tags associated with the given key.
	// If key cannot be found, then an error wrapping ErrDataNotFound must be returned.
	GetTags(key string) ([]Tag, error)

	// Query returns all data that satisfies the expression. Expression format:
	// TagName:TagValue, or TagName alone to match any value under that tag name.
	Query(expression string) (Iterator, error)

	// Delete deletes the key + value pair (and all of the tags) associated with key.
	// Deleting a non-existent key must not return an error.
	Delete(key string) error

	// Close closes this store object. All the Iterator objects created from this store
	// must be closed beforehand.
	Close() error
}

// Iterator allows for iteration over a collection of entries in a store.
type Iterator interface {
	// Next moves the pointer to the next entry in the iterator.
	// It returns false if the iterator is exhausted.
	Next() (bool, error)

	// Key returns the key of the current entry.
	Key() (string, error)

	// Value returns the value of the current entry.
	Value() ([]byte, error)

	// Tags returns the tags associated with the key of the current entry.
	Tags() ([]Tag, error)

	// Close closes this iterator object, freeing resources.
	Close() error
}

// QueryExpression is a parsed query expression.
type QueryExpression struct {
	TagName  string
	TagValue string
}

// ParseQueryExpression parses a TagName:TagValue (or bare TagName) expression.
func ParseQueryExpression(expression string) (QueryExpression, error) {
	if expression == "" {
		return QueryExpression{}, errors.New("expression cannot be empty")
	}

	split := strings.Split(expression, ":")

	switch len(split) {
	case 1:
		return QueryExpression{TagName: split[0]}, nil
	case 2: //nolint:gomnd
		return QueryExpression{TagName: split[0], TagValue: split[1]}, nil
	default:
		return QueryExpression{}, fmt.Errorf(
			"%q is not in the expected TagName:TagValue format", expression)
	}
}

// ValidateTags checks that no tag uses the reserved ':' character.
func ValidateTags(tags ...Tag) error {
	for _, tag := range tags {
		if strings.Contains(tag.Name, ":") {
			return fmt.Errorf("tag name %q contains the reserved ':' character", tag.Name)
		}

		if strings.Contains(tag.Value, ":") {
			return fmt.Errorf("tag value %q contains the reserved ':' character", tag.Value)
		}
	}

	return nil
}
