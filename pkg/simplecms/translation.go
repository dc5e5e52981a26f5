package simplecms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Keys the overlay attaches to records read in a language.
const (
	translationsKey = "translations"
	languageKey     = "language"
)

// TranslationOverlay stores per-language values of plain fields. The
// default-language value always lives in the record itself; translations
// are layered beside it on read and never replace it.
type TranslationOverlay struct {
	repo     Repository
	registry *SchemaRegistry
	now      func() time.Time
}

// NewTranslationOverlay creates an overlay over repo.
func NewTranslationOverlay(repo Repository, registry *SchemaRegistry) *TranslationOverlay {
	return &TranslationOverlay{
		repo:     repo,
		registry: registry,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get returns one translated value. The boolean is false when no
// translation exists.
func (o *TranslationOverlay) Get(ctx context.Context, table string, recordID int64, field, lang string) (string, bool, error) {
	t, err := o.repo.GetTranslation(ctx, table, recordID, field, lang)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageErr("get translation", err)
	}
	return t.Value, true, nil
}

// GetAll returns every translated field of a record in lang.
func (o *TranslationOverlay) GetAll(ctx context.Context, table string, recordID int64, lang string) (map[string]string, error) {
	rows, err := o.repo.ListTranslations(ctx, table, recordID, lang)
	if err != nil {
		return nil, storageErr("list translations", err)
	}
	out := make(map[string]string, len(rows))
	for _, t := range rows {
		out[t.Field] = t.Value
	}
	return out, nil
}

// GetAllLanguages returns language code to field to value for a record.
func (o *TranslationOverlay) GetAllLanguages(ctx context.Context, table string, recordID int64) (map[string]map[string]TranslationValue, error) {
	rows, err := o.repo.ListTranslations(ctx, table, recordID, "")
	if err != nil {
		return nil, storageErr("list translations", err)
	}
	out := make(map[string]map[string]TranslationValue)
	for _, t := range rows {
		byField, ok := out[t.Language]
		if !ok {
			byField = make(map[string]TranslationValue)
			out[t.Language] = byField
		}
		byField[t.Field] = TranslationValue{Value: t.Value, UpdatedAt: t.UpdatedAt}
	}
	return out, nil
}

// Upsert stores one translated value, replacing any previous one.
func (o *TranslationOverlay) Upsert(ctx context.Context, table string, recordID int64, field, lang, value string) error {
	if strings.TrimSpace(value) == "" {
		return Validationf("translation value for %s is required", field)
	}
	return o.repo.WithTx(ctx, func(tx Repository) error {
		fields, err := o.checkTarget(ctx, tx, table, recordID, lang)
		if err != nil {
			return err
		}
		if err := checkTranslatable(fields, field); err != nil {
			return err
		}
		return o.put(ctx, tx, table, recordID, field, lang, value)
	})
}

// UpsertBatch stores every non-empty value of fields and returns how many
// were saved. All values are validated before anything is written; when
// every value is empty nothing is saved and ErrNothingSaved is returned.
func (o *TranslationOverlay) UpsertBatch(ctx context.Context, table string, recordID int64, lang string, fields map[string]string) ([]string, error) {
	var saved []string
	err := o.repo.WithTx(ctx, func(tx Repository) error {
		defs, err := o.checkTarget(ctx, tx, table, recordID, lang)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(fields))
		for name, value := range fields {
			if err := checkTranslatable(defs, name); err != nil {
				return err
			}
			if strings.TrimSpace(value) != "" {
				names = append(names, name)
			}
		}
		if len(names) == 0 {
			return ErrNothingSaved
		}
		sort.Strings(names)

		for _, name := range names {
			if err := o.put(ctx, tx, table, recordID, name, lang, fields[name]); err != nil {
				return err
			}
		}
		saved = names
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Apply attaches "translations" and "language" to each record. Records read
// in the default language get an empty translation map.
func (o *TranslationOverlay) Apply(ctx context.Context, table string, records []Record, lang string, isDefault bool) error {
	for _, rec := range records {
		translations := map[string]string{}
		if !isDefault {
			var err error
			translations, err = o.GetAll(ctx, table, rec.ID(), lang)
			if err != nil {
				return err
			}
		}
		rec[translationsKey] = translations
		rec[languageKey] = lang
	}
	return nil
}

// checkTarget verifies the language, table and record a write addresses.
func (o *TranslationOverlay) checkTarget(ctx context.Context, tx Repository, table string, recordID int64, lang string) ([]FieldDefinition, error) {
	l, err := tx.GetLanguage(ctx, lang)
	if err != nil {
		return nil, storageErr("get language", err)
	}
	if l.IsDefault {
		return nil, Validationf("%s is the default language; edit the record instead", lang)
	}

	def, err := o.registry.bind(tx).Table(ctx, table)
	if err != nil {
		return nil, err
	}
	if _, err := tx.GetRecord(ctx, table, recordID); err != nil {
		return nil, &RecordError{Table: table, ID: recordID, Op: "translate", Err: storageErr("get record", err)}
	}
	return def.Fields, nil
}

func (o *TranslationOverlay) put(ctx context.Context, tx Repository, table string, recordID int64, field, lang, value string) error {
	err := tx.UpsertTranslation(ctx, &Translation{
		Table:     table,
		RecordID:  recordID,
		Field:     field,
		Language:  lang,
		Value:     value,
		UpdatedAt: o.now(),
	})
	return storageErr("upsert translation", err)
}

// checkTranslatable accepts plain fields only; media and foreign keys hold
// ids, not text.
func checkTranslatable(fields []FieldDefinition, name string) error {
	for _, f := range fields {
		if f.Name != name {
			continue
		}
		if _, plain := f.Role.(PlainRole); !plain {
			return Validationf("field %s cannot be translated", name)
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownField, name)
}
