/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mem provides an in-memory implementation of the storage interfaces. It is
// the only provider the framework ships: experiment state is scoped to the process
// lifetime.
package mem

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	spi "github.com/attestra/authbench/spi/storage"
)

var (
	errEmptyKey          = errors.New("key cannot be empty")
	errIteratorExhausted = errors.New("iterator is exhausted")
)

// Provider represents an in-memory implementation of the spi.Provider interface.
type Provider struct {
	dbs  map[string]*memStore
	lock sync.RWMutex
}

type closer func(storeName string)

// NewProvider instantiates a new in-memory storage Provider.
func NewProvider() *Provider {
	return &Provider{dbs: make(map[string]*memStore)}
}

// OpenStore opens a store with the given name and returns a handle.
// If the store has never been opened before, then it is created.
func (p *Provider) OpenStore(name string) (spi.Store, error) {
	if name == "" {
		return nil, fmt.Errorf("store name cannot be empty")
	}

	storeName := strings.ToLower(name)

	p.lock.Lock()
	defer p.lock.Unlock()

	store := p.dbs[storeName]
	if store == nil {
		newStore := &memStore{name: storeName, db: make(map[string]dbEntry), close: p.removeStore}
		p.dbs[storeName] = newStore

		return newStore, nil
	}

	return store, nil
}

// Close closes all stores created under this store provider.
func (p *Provider) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.dbs = make(map[string]*memStore)

	return nil
}

func (p *Provider) removeStore(name string) {
	p.lock.Lock()
	defer p.lock.Unlock()

	delete(p.dbs, name)
}

type dbEntry struct {
	value []byte
	tags  []spi.Tag
}

type memStore struct {
	name  string
	db    map[string]dbEntry
	close closer
	sync.RWMutex
}

// Put stores the key + value pair along with the (optional) tags.
func (m *memStore) Put(key string, value []byte, tags ...spi.Tag) error {
	if err := validatePut(key, value, tags); err != nil {
		return err
	}

	m.Lock()
	defer m.Unlock()

	m.db[key] = dbEntry{value: value, tags: tags}

	return nil
}

// PutIfAbsent stores the key + value pair only if no value exists under key yet.
// The check and the insert happen under one write lock, making the operation atomic
// with respect to all other writers of this store.
func (m *memStore) PutIfAbsent(key string, value []byte, tags ...spi.Tag) error {
	if err := validatePut(key, value, tags); err != nil {
		return err
	}

	m.Lock()
	defer m.Unlock()

	if _, exists := m.db[key]; exists {
		return fmt.Errorf("cannot insert %q: %w", key, spi.ErrDuplicateKey)
	}

	m.db[key] = dbEntry{value: value, tags: tags}

	return nil
}

// Get fetches the value associated with the given key.
// If key cannot be found, then an error wrapping spi.ErrDataNotFound is returned.
func (m *memStore) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, errEmptyKey
	}

	m.RLock()
	defer m.RUnlock()

	entry, ok := m.db[key]
	if !ok {
		return nil, spi.ErrDataNotFound
	}

	return entry.value, nil
}

// GetTags fetches all tags associated with the given key.
// If key cannot be found, then an error wrapping spi.ErrDataNotFound is returned.
func (m *memStore) GetTags(key string) ([]spi.Tag, error) {
	if key == "" {
		return nil, errEmptyKey
	}

	m.RLock()
	defer m.RUnlock()

	entry, ok := m.db[key]
	if !ok {
		return nil, spi.ErrDataNotFound
	}

	return entry.tags, nil
}

// Query returns all data that satisfies the expression. Expression format:
// TagName:TagValue. If TagValue is not provided, then all data associated with the
// TagName is returned. The iterator holds a snapshot taken at query time.
func (m *memStore) Query(expression string) (spi.Iterator, error) {
	parsed, err := spi.ParseQueryExpression(expression)
	if err != nil {
		return nil, err
	}

	keys, dbEntries := m.getMatchingKeysAndDBEntries(parsed.TagName, parsed.TagValue)

	return &memIterator{keys: keys, dbEntries: dbEntries, currentIndex: -1}, nil
}

// Delete deletes the key + value pair (and all tags) associated with key.
func (m *memStore) Delete(key string) error {
	if key == "" {
		return errEmptyKey
	}

	m.Lock()
	defer m.Unlock()

	delete(m.db, key)

	return nil
}

// Close closes this store object. All data within the store is deleted.
func (m *memStore) Close() error {
	m.close(m.name)

	return nil
}

func (m *memStore) getMatchingKeysAndDBEntries(tagName, tagValue string) ([]string, []dbEntry) {
	matchAnyValue := tagValue == ""

	var keys []string

	var dbEntries []dbEntry

	m.RLock()
	defer m.RUnlock()

	for key, entry := range m.db {
		for _, tag := range entry.tags {
			if tag.Name == tagName && (matchAnyValue || tag.Value == tagValue) {
				keys = append(keys, key)
				dbEntries = append(dbEntries, entry)

				break
			}
		}
	}

	return keys, dbEntries
}

func validatePut(key string, value []byte, tags []spi.Tag) error {
	if key == "" {
		return errEmptyKey
	}

	if value == nil {
		return errors.New("value cannot be nil")
	}

	return spi.ValidateTags(tags...)
}

type memIterator struct {
	currentIndex   int
	currentKey     string
	currentDBEntry dbEntry
	keys           []string
	dbEntries      []dbEntry
}

// Next moves the pointer to the next entry in the iterator. It returns false if the
// iterator is exhausted.
func (m *memIterator) Next() (bool, error) {
	if len(m.dbEntries) == m.currentIndex+1 {
		m.dbEntries = nil

		return false, nil
	}

	m.currentIndex++
	m.currentKey = m.keys[m.currentIndex]
	m.currentDBEntry = m.dbEntries[m.currentIndex]

	return true, nil
}

// Key returns the key of the current entry.
func (m *memIterator) Key() (string, error) {
	if m.dbEntries == nil {
		return "", errIteratorExhausted
	}

	return m.currentKey, nil
}

// Value returns the value of the current entry.
func (m *memIterator) Value() ([]byte, error) {
	if m.dbEntries == nil {
		return nil, errIteratorExhausted
	}

	return m.currentDBEntry.value, nil
}

// Tags returns the tags associated with the key of the current entry.
func (m *memIterator) Tags() ([]spi.Tag, error) {
	if m.dbEntries == nil {
		return nil, errIteratorExhausted
	}

	return m.currentDBEntry.tags, nil
}

// Close is a no-op for the in-memory iterator: the snapshot is released with it.
func (m *memIterator) Close() error {
	m.dbEntries = nil

	return nil
}
