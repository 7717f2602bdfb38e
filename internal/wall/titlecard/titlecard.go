// Package titlecard shows the name and author of the current module in a
// corner of the wall while it is visible.
package titlecard

import (
	"log/slog"
	"sync"
)

// Info is the metadata shown on the card.
type Info struct {
	Title  string `json:"title,omitempty" toml:"title"`
	Author string `json:"author,omitempty" toml:"author"`
}

// Empty reports whether there is nothing to show.
func (i Info) Empty() bool {
	return i.Title == "" && i.Author == ""
}

// Card is the title card of one module instance.
type Card struct {
	info   Info
	logger *slog.Logger

	mu      sync.Mutex
	visible bool
	status  string
	shown   int
}

// New builds a hidden card for info.
func New(info Info, logger *slog.Logger) *Card {
	if logger == nil {
		logger = slog.Default()
	}
	return &Card{info: info, logger: logger.WithGroup("titlecard")}
}

// Enter shows the card. It does nothing when there is no metadata.
func (c *Card) Enter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info.Empty() || c.visible {
		return
	}
	c.visible = true
	c.shown++
	c.logger.Debug("Title card shown", "title", c.info.Title, "author", c.info.Author)
}

// Exit hides the card. Safe to call when already hidden.
func (c *Card) Exit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.visible {
		return
	}
	c.visible = false
	c.logger.Debug("Title card hidden", "title", c.info.Title)
}

func (c *Card) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

func (c *Card) Info() Info {
	return c.info
}

// Status returns the extra line set by the module.
func (c *Card) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ModuleAPI returns the restricted view of the card handed to module code.
func (c *Card) ModuleAPI() *API {
	return &API{card: c}
}

// API lets a module annotate its own card without controlling visibility.
type API struct {
	card *Card
}

// SetStatus sets an extra line of text under the title.
func (a *API) SetStatus(text string) {
	a.card.mu.Lock()
	defer a.card.mu.Unlock()
	a.card.status = text
}
