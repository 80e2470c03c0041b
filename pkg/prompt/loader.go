// Package prompt supplies the system prompt for model calls and hot
// reloads it when the backing file changes on disk.
package prompt

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultSystemPrompt is used when no prompt file is configured or the
// configured file cannot be read.
const DefaultSystemPrompt = `Sos Paws, un asistente veterinario por WhatsApp. Ayudás a los dueños de mascotas a registrar sus animales, llevar su historial de consultas y vacunas, y encontrar clínicas veterinarias cercanas.

Reglas:
- Respondé siempre en el idioma del usuario, por defecto español.
- Usá las herramientas disponibles para consultar o registrar datos; nunca inventes historiales ni vacunas.
- Ante síntomas graves o urgencias, recomendá acudir a una clínica de inmediato y ofrecé buscar una cercana.
- Sé breve y claro: son mensajes de WhatsApp, no informes.
- No des diagnósticos definitivos; orientá y sugerí consultar a un profesional.`

// Loader serves the current system prompt. It is safe for concurrent
// use; Watch hot-reloads the prompt when the file changes.
type Loader struct {
	path string

	mu     sync.RWMutex
	prompt string

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewLoader creates a Loader. An empty path serves the built-in prompt
// and Watch becomes a no-op.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{
		path:   path,
		prompt: DefaultSystemPrompt,
		done:   make(chan struct{}),
	}

	if path != "" {
		if err := l.reload(); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// System returns the current system prompt.
func (l *Loader) System() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.prompt
}

// Watch starts watching the prompt file for changes.
func (l *Loader) Watch() error {
	if l.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create prompt watcher: %w", err)
	}

	if err := watcher.Add(l.path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch prompt file: %w", err)
	}

	l.watcher = watcher
	go l.eventLoop()

	log.Info().Str("path", l.path).Msg("Prompt watcher started")
	return nil
}

// Stop stops the watcher. Calling it without Watch is a no-op.
func (l *Loader) Stop() error {
	l.stopOnce.Do(func() {
		close(l.done)
	})

	l.debounceMu.Lock()
	if l.debounceTimer != nil {
		l.debounceTimer.Stop()
	}
	l.debounceMu.Unlock()

	if l.watcher == nil {
		return nil
	}
	if err := l.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close prompt watcher: %w", err)
	}

	log.Info().Msg("Prompt watcher stopped")
	return nil
}

func (l *Loader) eventLoop() {
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				l.debounceReload()
			}

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Prompt watcher error")

		case <-l.done:
			return
		}
	}
}

// debounceReload coalesces editor write bursts into one reload.
func (l *Loader) debounceReload() {
	l.debounceMu.Lock()
	defer l.debounceMu.Unlock()

	if l.debounceTimer != nil {
		l.debounceTimer.Stop()
	}
	l.debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
		select {
		case <-l.done:
			return
		default:
		}

		if err := l.reload(); err != nil {
			log.Warn().Err(err).Str("path", l.path).Msg("Prompt reload failed, keeping previous prompt")
			return
		}
		log.Info().Str("path", l.path).Msg("System prompt reloaded")
	})
}

func (l *Loader) reload() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("failed to read prompt file: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return fmt.Errorf("prompt file %s is empty", l.path)
	}

	l.mu.Lock()
	l.prompt = text
	l.mu.Unlock()

	return nil
}
