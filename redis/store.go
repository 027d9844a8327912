// Package redis provides an EventStore and a Pubsub backed by Redis or
// Valkey
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kode4food/dispatch"
)

type (
	// Store is an EventStore that keeps every event in a single Redis list,
	// in insertion order, with a hash indexing event IDs for uniqueness and
	// a list per event name indexing the events that carry it
	Store struct {
		client          *goredis.Client
		appendEventsLua *goredis.Script
		getEventLua     *goredis.Script
		getEventsByName *goredis.Script
		prefix          string
		ownsClient      bool
	}
)

const (
	eventsSuffix    = ":events"
	eventIDsSuffix  = ":event_ids"
	eventNameSuffix = ":events:name:"
)

var (
	ErrUnexpectedLuaResult = errors.New("unexpected result from Lua script")
)

var _ dispatch.EventStore = (*Store)(nil)

// Open connects to the configured Redis server and returns a Store using
// it. The Store closes the connection when it is closed
func Open(ctx context.Context, cfg Config) (*Store, error) {
	client, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := NewStore(client, cfg.Prefix)
	s.ownsClient = true
	return s, nil
}

// NewStore returns a Store using an existing client. Keys are namespaced
// under prefix
func NewStore(client *goredis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		client:          client,
		appendEventsLua: goredis.NewScript(luaAppendEvents),
		getEventLua:     goredis.NewScript(luaGetEvent),
		getEventsByName: goredis.NewScript(luaGetEventsByName),
		prefix:          prefix,
	}
}

// Close releases the connection if the Store opened it
func (s *Store) Close() error {
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}

// Append stores evs as one atomic batch
func (s *Store) Append(
	ctx context.Context, evs ...*dispatch.Event,
) ([]*dispatch.Event, error) {
	if len(evs) == 0 {
		return evs, nil
	}
	if err := dispatch.CheckBatch(evs); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(evs)+2)
	keys = append(keys, s.eventsKey(), s.eventIDsKey())
	args := make([]any, 0, len(evs)*2)
	for _, ev := range evs {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		keys = append(keys, s.eventNameKey(string(ev.Type)))
		args = append(args, string(ev.ID), string(data))
	}

	result, err := s.appendEventsLua.Run(ctx, s.client, keys, args...).Result()
	if err != nil {
		return nil, err
	}

	res, ok := result.([]any)
	if !ok || len(res) < 2 {
		return nil, ErrUnexpectedLuaResult
	}
	if success, _ := res[0].(int64); success == 0 {
		id, _ := res[1].(string)
		return nil, &dispatch.DuplicateEventError{ID: dispatch.ID(id)}
	}
	return evs, nil
}

// Query returns the stored events matching q. A query on the id property
// is answered from the id index and a query on the name property from that
// name's index; only other queries scan the whole log
func (s *Store) Query(
	ctx context.Context, q dispatch.EventQuery,
) ([]*dispatch.Event, error) {
	if id, ok := textProperty(q, dispatch.PropertyID); ok {
		keys := []string{s.eventsKey(), s.eventIDsKey()}
		return s.runQuery(ctx, q, s.getEventLua, keys, id)
	}
	if name, ok := textProperty(q, dispatch.PropertyName); ok {
		keys := []string{s.eventsKey(), s.eventNameKey(name)}
		return s.runQuery(ctx, q, s.getEventsByName, keys)
	}

	raw, err := s.client.LRange(ctx, s.eventsKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return filterEvents(q, raw)
}

func (s *Store) runQuery(
	ctx context.Context, q dispatch.EventQuery, script *goredis.Script,
	keys []string, args ...any,
) ([]*dispatch.Event, error) {
	result, err := script.Run(ctx, s.client, keys, args...).Result()
	if err != nil {
		return nil, err
	}

	res, ok := result.([]any)
	if !ok {
		return nil, ErrUnexpectedLuaResult
	}
	raw := make([]string, 0, len(res))
	for _, item := range res {
		data, ok := item.(string)
		if !ok {
			return nil, ErrUnexpectedLuaResult
		}
		raw = append(raw, data)
	}
	return filterEvents(q, raw)
}

func (s *Store) eventsKey() string {
	return s.prefix + eventsSuffix
}

func (s *Store) eventIDsKey() string {
	return s.prefix + eventIDsSuffix
}

func (s *Store) eventNameKey(name string) string {
	return s.prefix + eventNameSuffix + name
}

func connect(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connect %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// textProperty returns the string value q requires for key, if any
func textProperty(q dispatch.EventQuery, key string) (string, bool) {
	switch v := q.Properties[key].(type) {
	case string:
		return v, true
	case dispatch.ID:
		return string(v), true
	case dispatch.EventType:
		return string(v), true
	default:
		return "", false
	}
}

func filterEvents(
	q dispatch.EventQuery, raw []string,
) ([]*dispatch.Event, error) {
	matched := []*dispatch.Event{}
	for _, item := range raw {
		ev, err := unmarshalEvent(item)
		if err != nil {
			return nil, err
		}
		if q.Matches(ev) {
			matched = append(matched, ev)
		}
	}
	start, end := q.Window(len(matched))
	return matched[start:end], nil
}

func unmarshalEvent(data string) (*dispatch.Event, error) {
	ev := &dispatch.Event{}
	if err := json.Unmarshal([]byte(data), ev); err != nil {
		return nil, err
	}
	return ev, nil
}
