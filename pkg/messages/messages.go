// Package messages translates the messages shown to the user.
package messages

import (
	"embed"
	"fmt"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var locales embed.FS

// Languages available
var Languages = []string{"en", "it"}

var (
	bundleOnce sync.Once
	bundle     *i18n.Bundle
	bundleErr  error
)

func loadBundle() (*i18n.Bundle, error) {
	bundleOnce.Do(func() {
		b := i18n.NewBundle(language.English)
		b.RegisterUnmarshalFunc("toml", toml.Unmarshal)
		for _, l := range Languages {
			if _, err := b.LoadMessageFileFS(locales, "locales/active."+l+".toml"); err != nil {
				bundleErr = fmt.Errorf("can't load %s messages: %w", l, err)
				return
			}
		}
		bundle = b
	})
	return bundle, bundleErr
}

// Translator gives the messages in one language
type Translator struct {
	localizer *i18n.Localizer
	lang      string
}

// New returns a translator for the language, English when the language isn't known
func New(lang string) (*Translator, error) {
	b, err := loadBundle()
	if err != nil {
		return nil, err
	}
	return &Translator{
		localizer: i18n.NewLocalizer(b, lang, "en"),
		lang:      lang,
	}, nil
}

// T returns the message id filled with data. The id itself is returned when it is unknown.
func (t *Translator) T(id string, data map[string]interface{}) string {
	return t.localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
}

// N returns the message id for count items
func (t *Translator) N(id string, count int, data map[string]interface{}) string {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["Count"] = count
	return t.localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data, PluralCount: count})
}

func (t *Translator) localize(c *i18n.LocalizeConfig) string {
	s, err := t.localizer.Localize(c)
	if err != nil {
		return c.MessageID
	}
	return s
}

func (t *Translator) Language() string { return t.lang }
