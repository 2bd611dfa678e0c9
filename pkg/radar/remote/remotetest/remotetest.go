// Package remotetest provides an in-memory remote.Catalog for tests.
package remotetest

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/jamesainslie/radarsync/pkg/radar/remote"
)

// Catalog is an in-memory remote catalog with injectable failures.
type Catalog struct {
	mu sync.Mutex

	files  map[string][]byte // full remote path -> content
	extras map[string][]string

	connectErr error
	listErr    error
	fetchErr   map[string]error

	connects int
	closes   int
	fetches  map[string]int
}

var _ remote.Catalog = (*Catalog)(nil)

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		files:    make(map[string][]byte),
		extras:   make(map[string][]string),
		fetchErr: make(map[string]error),
		fetches:  make(map[string]int),
	}
}

// Put publishes a file in dir.
func (c *Catalog) Put(dir, name string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[remote.Join(dir, name)] = data
}

// Delete withdraws a file from dir.
func (c *Catalog) Delete(dir, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.files, remote.Join(dir, name))
}

// AddListing appends a raw entry to dir's listing without publishing content,
// e.g. to simulate duplicate listing entries.
func (c *Catalog) AddListing(dir, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extras[dir] = append(c.extras[dir], name)
}

// FailConnect makes every Connect fail with err until cleared with nil.
func (c *Catalog) FailConnect(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectErr = err
}

// FailList makes every List fail with err until cleared with nil.
func (c *Catalog) FailList(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listErr = err
}

// FailFetch makes fetching the named file in dir fail with err until cleared with nil.
func (c *Catalog) FailFetch(dir, name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.fetchErr, remote.Join(dir, name))
		return
	}
	c.fetchErr[remote.Join(dir, name)] = err
}

// Fetches returns how many times the file was fetched.
func (c *Catalog) Fetches(dir, name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches[remote.Join(dir, name)]
}

// TotalFetches returns the number of fetch calls across all files.
func (c *Catalog) TotalFetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.fetches {
		total += n
	}
	return total
}

// Connects returns the number of sessions opened.
func (c *Catalog) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// Closes returns the number of sessions closed.
func (c *Catalog) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// Connect opens a session.
func (c *Catalog) Connect(ctx context.Context) (remote.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	c.connects++
	return &session{catalog: c}, nil
}

type session struct {
	catalog *Catalog
	closed  bool
}

func (s *session) List(dir string) ([]string, error) {
	c := s.catalog
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("session closed")
	}
	if c.listErr != nil {
		return nil, c.listErr
	}

	var names []string
	for p := range c.files {
		if path.Dir(p) == path.Clean(dir) {
			names = append(names, path.Base(p))
		}
	}
	sort.Strings(names)
	return append(names, c.extras[dir]...), nil
}

func (s *session) Fetch(p string) ([]byte, error) {
	c := s.catalog
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("session closed")
	}
	c.fetches[p]++
	if err := c.fetchErr[p]; err != nil {
		return nil, err
	}
	data, ok := c.files[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", remote.ErrNotFound, p)
	}
	return append([]byte(nil), data...), nil
}

func (s *session) Close() error {
	c := s.catalog
	c.mu.Lock()
	defer c.mu.Unlock()
	if !s.closed {
		s.closed = true
		c.closes++
	}
	return nil
}
