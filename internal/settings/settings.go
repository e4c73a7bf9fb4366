/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package settings stores the output settings of the player outputs.
// Applying a value runs the platform handler synchronously and notifies
// the listeners of the output from a worker goroutine.
package settings

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/eos/internal/errs"
	"github.com/friendsincode/eos/internal/msgq"
)

// Option names an output setting.
type Option int

const (
	VideoPos Option = iota + 1
	VideoSize
	AudioMode
	VolumeLeveling
)

var optionNames = map[Option]string{
	VideoPos:       "video_pos",
	VideoSize:      "video_size",
	AudioMode:      "audio_mode",
	VolumeLeveling: "volume_leveling",
}

func (o Option) String() string {
	if name, ok := optionNames[o]; ok {
		return name
	}
	return "unknown"
}

// ParseOption is the inverse of Option.String.
func ParseOption(s string) (Option, error) {
	for o, name := range optionNames {
		if name == s {
			return o, nil
		}
	}
	return 0, fmt.Errorf("option %q: %w", s, errs.ErrInval)
}

// Value is a setting payload. Only the fields of its option matter:
// X/Y for VideoPos, W/H for VideoSize, Passthrough for AudioMode and
// Leveling/Level for VolumeLeveling.
type Value struct {
	X           uint16 `yaml:"x,omitempty" json:"x,omitempty"`
	Y           uint16 `yaml:"y,omitempty" json:"y,omitempty"`
	W           uint16 `yaml:"w,omitempty" json:"w,omitempty"`
	H           uint16 `yaml:"h,omitempty" json:"h,omitempty"`
	Passthrough bool   `yaml:"passthrough,omitempty" json:"passthrough,omitempty"`
	Leveling    bool   `yaml:"leveling,omitempty" json:"leveling,omitempty"`
	Level       int    `yaml:"level,omitempty" json:"level,omitempty"`
}

// SystemHandler applies a value to the platform. A failure rejects the
// value.
type SystemHandler func(out uint32, opt Option, val Value) error

// Listener is notified after a value was applied.
type Listener func(out uint32, opt Option, val Value)

// ListenerID identifies a registered listener.
type ListenerID uint64

type key struct {
	out uint32
	opt Option
}

type notification struct {
	key
	val Value
}

type listener struct {
	id ListenerID
	fn Listener
}

// DefaultQueueLen bounds the pending listener notifications.
const DefaultQueueLen = 32

// Registry is safe for concurrent use.
type Registry struct {
	logger zerolog.Logger
	queue  *msgq.Queue[notification]
	wg     sync.WaitGroup

	mu        sync.Mutex
	values    map[key]Value
	handlers  map[Option]SystemHandler
	listeners map[uint32][]listener
	nextID    ListenerID
	closed    bool
}

// New creates a registry and starts its notification worker.
func New(logger zerolog.Logger) *Registry {
	r := &Registry{
		logger:    logger.With().Str("component", "settings").Logger(),
		queue:     msgq.New[notification](DefaultQueueLen, nil),
		values:    make(map[key]Value),
		handlers:  make(map[Option]SystemHandler),
		listeners: make(map[uint32][]listener),
	}
	r.wg.Add(1)
	go r.notify()
	return r
}

// Close stops the worker. Pending notifications are dropped.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	r.queue.Pause()
	r.wg.Wait()
	r.queue.Close()
}

// SetSystemHandler installs the platform handler of opt, replacing any
// previous one.
func (r *Registry) SetSystemHandler(opt Option, fn SystemHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[opt]; ok {
		r.logger.Warn().Stringer("option", opt).Msg("replacing system handler")
	}
	if fn == nil {
		delete(r.handlers, opt)
		return
	}
	r.handlers[opt] = fn
}

// Apply runs the system handler of opt, stores val and queues the
// listener notification.
func (r *Registry) Apply(out uint32, opt Option, val Value) error {
	if _, ok := optionNames[opt]; !ok {
		return fmt.Errorf("apply option %d: %w", opt, errs.ErrInval)
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("settings closed: %w", errs.ErrPerm)
	}
	handler := r.handlers[opt]
	r.mu.Unlock()

	if handler != nil {
		if err := handler(out, opt, val); err != nil {
			return fmt.Errorf("apply %v on output %d: %w", opt, out, err)
		}
	}

	k := key{out: out, opt: opt}
	r.mu.Lock()
	r.values[k] = val
	r.mu.Unlock()

	if err := r.queue.TryPut(notification{key: k, val: val}); err != nil {
		r.logger.Warn().Err(err).Uint32("out", out).Stringer("option", opt).Msg("listener notification dropped")
	}
	return nil
}

// Fetch returns the last applied value.
func (r *Registry) Fetch(out uint32, opt Option) (Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.values[key{out: out, opt: opt}]
	if !ok {
		return Value{}, fmt.Errorf("%v on output %d: %w", opt, out, errs.ErrNotFound)
	}
	return v, nil
}

// AddListener registers fn for changes on out. The same function may be
// registered more than once.
func (r *Registry) AddListener(out uint32, fn Listener) (ListenerID, error) {
	if fn == nil {
		return 0, errs.ErrInval
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.listeners[out] = append(r.listeners[out], listener{id: r.nextID, fn: fn})
	return r.nextID, nil
}

// RemoveListener unregisters a listener added with AddListener.
func (r *Registry) RemoveListener(out uint32, id ListenerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ls := r.listeners[out]
	for i, l := range ls {
		if l.id == id {
			r.listeners[out] = append(ls[:i], ls[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("listener %d on output %d: %w", id, out, errs.ErrNotFound)
}

func (r *Registry) notify() {
	defer r.wg.Done()
	for {
		n, err := r.queue.Get(context.Background())
		if err != nil {
			return
		}
		r.mu.Lock()
		ls := append([]listener(nil), r.listeners[n.out]...)
		r.mu.Unlock()
		for _, l := range ls {
			l.fn(n.out, n.opt, n.val)
		}
	}
}

// Entry is one stored value in a snapshot.
type Entry struct {
	Out    uint32 `yaml:"out"`
	Option string `yaml:"option"`
	Value  Value  `yaml:"value"`
}

type snapshot struct {
	Settings []Entry `yaml:"settings"`
}

// Snapshot lists the stored values ordered by output and option.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	out := make([]Entry, 0, len(r.values))
	keys := make([]key, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].out != keys[j].out {
			return keys[i].out < keys[j].out
		}
		return keys[i].opt < keys[j].opt
	})
	for _, k := range keys {
		out = append(out, Entry{Out: k.out, Option: k.opt.String(), Value: r.values[k]})
	}
	r.mu.Unlock()
	return out
}

// Save writes the stored values to path as YAML.
func (r *Registry) Save(path string) error {
	data, err := yaml.Marshal(snapshot{Settings: r.Snapshot()})
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	r.logger.Debug().Str("path", path).Msg("settings saved")
	return nil
}

// Load re-applies every value of the snapshot at path. Entries that fail
// are logged and skipped; the first failure is returned.
func (r *Registry) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode settings: %w", errs.ErrInval)
	}
	var first error
	for _, e := range snap.Settings {
		opt, err := ParseOption(e.Option)
		if err == nil {
			err = r.Apply(e.Out, opt, e.Value)
		}
		if err != nil {
			r.logger.Warn().Err(err).Uint32("out", e.Out).Str("option", e.Option).Msg("setting not restored")
			if first == nil {
				first = err
			}
		}
	}
	r.logger.Info().Int("settings", len(snap.Settings)).Str("path", path).Msg("settings loaded")
	return first
}
