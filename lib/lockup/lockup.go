// Package lockup tracks the conditions that disable the terminal.
package lockup

import (
	"log"
	"sort"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Key identifies a lockup condition. Keys are stable across releases.
type Key string

const (
	ServerDisconnected           Key = "ServerDisconnected"
	ProtocolInitializing         Key = "ProtocolInitializing"
	ProtocolInitializationFailed Key = "ProtocolInitializationFailed"
	TransactionTimeout           Key = "TransactionTimeout"
	GamePlayTimeout              Key = "GamePlayTimeout"
	RecoveryFailed               Key = "RecoveryFailed"
	PrizeCalculationError        Key = "PrizeCalculationError"
	ServerPaused                 Key = "ServerPaused"
	ProgressiveDisabled          Key = "ProgressiveDisabled"
)

// Lockup is a condition together with the catalog ids of its operator visible texts.
type Lockup struct {
	Key      Key
	Message  string
	HelpText string
}

// Of returns the lockup with the default texts of the key.
func Of(key Key) Lockup {
	return Lockup{
		Key:      key,
		Message:  "lockup." + string(key) + ".message",
		HelpText: "lockup." + string(key) + ".help",
	}
}

// Sink shows lockups to the operator.
type Sink interface {
	Disabled(key Key, message string, help string)
	Enabled(key Key)
}

// Disabler is the part of the Manager that raises and clears lockups.
type Disabler interface {
	Disable(lockup Lockup) bool
	Enable(key Key) bool
	IsActive(key Key) bool
}

type Manager struct {
	mutex   sync.Mutex
	active  map[Key]Lockup
	printer *message.Printer
	sink    Sink
	log     *log.Logger
}

// NewManager creates a Manager that translates texts for the given locale.
// The sink may be nil.
func NewManager(tag language.Tag, sink Sink) *Manager {
	return &Manager{
		active:  make(map[Key]Lockup),
		printer: message.NewPrinter(tag, message.Catalog(builtin)),
		sink:    sink,
		log:     log.New(log.Writer(), "lockup: ", log.Flags()),
	}
}

// Disable raises the lockup. It reports false if the key was already active.
func (m *Manager) Disable(lockup Lockup) bool {
	m.mutex.Lock()
	if _, ok := m.active[lockup.Key]; ok {
		m.mutex.Unlock()
		return false
	}
	m.active[lockup.Key] = lockup
	m.mutex.Unlock()

	text, help := m.Text(lockup)
	m.log.Println("disabled:", lockup.Key, text)
	if m.sink != nil {
		m.sink.Disabled(lockup.Key, text, help)
	}
	return true
}

// Enable clears the lockup. It reports false if the key was not active.
func (m *Manager) Enable(key Key) bool {
	m.mutex.Lock()
	if _, ok := m.active[key]; !ok {
		m.mutex.Unlock()
		return false
	}
	delete(m.active, key)
	m.mutex.Unlock()

	m.log.Println("enabled:", key)
	if m.sink != nil {
		m.sink.Enabled(key)
	}
	return true
}

func (m *Manager) IsActive(key Key) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, ok := m.active[key]
	return ok
}

// Active returns the active keys in lexical order.
func (m *Manager) Active() []Key {
	m.mutex.Lock()
	keys := make([]Key, 0, len(m.active))
	for key := range m.active {
		keys = append(keys, key)
	}
	m.mutex.Unlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Text returns the translated message and help text of a lockup.
func (m *Manager) Text(lockup Lockup) (text string, help string) {
	return m.printer.Sprintf(lockup.Message), m.printer.Sprintf(lockup.HelpText)
}
