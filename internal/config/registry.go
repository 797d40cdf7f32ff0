package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rook-mem/rook/pkg/memory"
	"github.com/rook-mem/rook/pkg/provider/embeddings"
	"github.com/rook-mem/rook/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// capability Rook depends on. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	llm      map[string]func(ProviderEntry) (llm.Provider, error)
	embed    map[string]func(ProviderEntry) (embeddings.Provider, error)
	vectorDB map[string]func(ProviderEntry) (memory.VectorStore, error)
	graphDB  map[string]func(ProviderEntry) (memory.GraphStore, error)
	reranker map[string]func(ProviderEntry) (memory.Reranker, error)
	fullText map[string]func(ProviderEntry) (memory.FullTextIndex, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:      make(map[string]func(ProviderEntry) (llm.Provider, error)),
		embed:    make(map[string]func(ProviderEntry) (embeddings.Provider, error)),
		vectorDB: make(map[string]func(ProviderEntry) (memory.VectorStore, error)),
		graphDB:  make(map[string]func(ProviderEntry) (memory.GraphStore, error)),
		reranker: make(map[string]func(ProviderEntry) (memory.Reranker, error)),
		fullText: make(map[string]func(ProviderEntry) (memory.FullTextIndex, error)),
	}
}

// RegisterLLM registers a language model provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embed[name] = factory
}

// RegisterVectorDB registers a vector store factory under name.
func (r *Registry) RegisterVectorDB(name string, factory func(ProviderEntry) (memory.VectorStore, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vectorDB[name] = factory
}

// RegisterGraphDB registers a graph store factory under name.
func (r *Registry) RegisterGraphDB(name string, factory func(ProviderEntry) (memory.GraphStore, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.graphDB[name] = factory
}

// RegisterReranker registers a reranker factory under name.
func (r *Registry) RegisterReranker(name string, factory func(ProviderEntry) (memory.Reranker, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reranker[name] = factory
}

// RegisterFullText registers a full-text index factory under name.
func (r *Registry) RegisterFullText(name string, factory func(ProviderEntry) (memory.FullTextIndex, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fullText[name] = factory
}

// CreateLLM instantiates a language model provider using the factory
// registered under entry.Name. Returns [ErrProviderNotRegistered] if no
// factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateEmbeddings instantiates an embeddings provider using the factory registered under entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embed[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateVectorDB instantiates a vector store using the factory registered under entry.Name.
func (r *Registry) CreateVectorDB(entry ProviderEntry) (memory.VectorStore, error) {
	r.mu.RLock()
	factory, ok := r.vectorDB[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vector_db/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateGraphDB instantiates a graph store using the factory registered under entry.Name.
func (r *Registry) CreateGraphDB(entry ProviderEntry) (memory.GraphStore, error) {
	r.mu.RLock()
	factory, ok := r.graphDB[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: graph_db/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateReranker instantiates a reranker using the factory registered under entry.Name.
func (r *Registry) CreateReranker(entry ProviderEntry) (memory.Reranker, error) {
	r.mu.RLock()
	factory, ok := r.reranker[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: reranker/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateFullText instantiates a full-text index using the factory registered under entry.Name.
func (r *Registry) CreateFullText(entry ProviderEntry) (memory.FullTextIndex, error) {
	r.mu.RLock()
	factory, ok := r.fullText[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: full_text/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
