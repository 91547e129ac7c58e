package cache

import (
	"context"
	"sync"

	"paperflow/internal/domain"
)

// Lister - источник данных кэша; промах всегда можно закрыть походом в него
type Lister[T any] func(ctx context.Context, desc domain.QueryDescriptor) (domain.PageResult[T], error)

type entry[T any] struct {
	result domain.PageResult[T]
}

// QueryCache кэширует страницы списочных запросов по каноническому ключу
// дескриптора и заранее подтягивает соседние страницы, чтобы листание
// вперед и назад разрешалось из кэша. Кэш - оптимизация, не источник
// истины: любая запись мягкая и сбрасывается при мутации сущности.
type QueryCache[T any] struct {
	mu       sync.RWMutex
	entries  map[string]entry[T]
	byTag    map[string]map[string]struct{}
	inflight map[string]struct{}
	// gens растет при каждой инвалидации тега; результат, начатый при
	// меньшем поколении, устарел и в кэш не попадает
	gens   map[string]uint64
	lister Lister[T]
}

func New[T any](lister Lister[T]) *QueryCache[T] {
	return &QueryCache[T]{
		entries:  make(map[string]entry[T]),
		byTag:    make(map[string]map[string]struct{}),
		inflight: make(map[string]struct{}),
		gens:     make(map[string]uint64),
		lister:   lister,
	}
}

// Get возвращает страницу из кэша или из источника. После успешной
// загрузки асинхронно подтягиваются страница+1 (если она есть) и
// страница-1 (если текущая не первая) с теми же фильтрами и областью
// видимости.
func (c *QueryCache[T]) Get(ctx context.Context, desc domain.QueryDescriptor) (domain.PageResult[T], error) {
	key := desc.Key()

	c.mu.RLock()
	if e, ok := c.entries[key]; ok {
		c.mu.RUnlock()
		return e.result, nil
	}
	gen := c.gens[desc.EntityTag]
	c.mu.RUnlock()

	result, err := c.lister(ctx, desc)
	if err != nil {
		return result, err
	}

	c.store(key, desc.EntityTag, gen, result)

	pageCount := result.PageCount()
	if desc.Page < pageCount {
		go c.prefetch(desc.WithPage(desc.Page + 1))
	}
	if desc.Page > 1 {
		go c.prefetch(desc.WithPage(desc.Page - 1))
	}

	return result, nil
}

// Prefetch загружает страницу в кэш, если её там еще нет
func (c *QueryCache[T]) Prefetch(desc domain.QueryDescriptor) {
	c.prefetch(desc)
}

func (c *QueryCache[T]) prefetch(desc domain.QueryDescriptor) {
	key := desc.Key()

	c.mu.Lock()
	if _, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return
	}
	if _, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		return
	}
	c.inflight[key] = struct{}{}
	gen := c.gens[desc.EntityTag]
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
	}()

	// Префетч переживает отмену исходного запроса
	result, err := c.lister(context.Background(), desc)
	if err != nil {
		return
	}
	c.store(key, desc.EntityTag, gen, result)
}

func (c *QueryCache[T]) store(key, tag string, gen uint64, result domain.PageResult[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Тег инвалидировали, пока шла загрузка - результат уже устарел
	if c.gens[tag] != gen {
		return
	}

	c.entries[key] = entry[T]{result: result}
	keys, ok := c.byTag[tag]
	if !ok {
		keys = make(map[string]struct{})
		c.byTag[tag] = keys
	}
	keys[key] = struct{}{}
}

// Invalidate сбрасывает все записи под тегом сущности. Вызывается после
// каждой успешной мутации, которая могла изменить результаты запросов.
func (c *QueryCache[T]) Invalidate(entityTag string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[entityTag]++
	for key := range c.byTag[entityTag] {
		delete(c.entries, key)
	}
	delete(c.byTag, entityTag)
}

// Len возвращает количество закэшированных страниц
func (c *QueryCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cached сообщает, есть ли в кэше запись для дескриптора
func (c *QueryCache[T]) Cached(desc domain.QueryDescriptor) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[desc.Key()]
	return ok
}
