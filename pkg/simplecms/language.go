package simplecms

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// normalizeLanguageCode lowercases a code and checks it looks like a BCP 47
// tag such as "en" or "pt-br".
func normalizeLanguageCode(code string) (string, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if len(code) < 2 || len(code) > 16 {
		return "", Validationf("invalid language code %q", code)
	}
	for _, r := range code {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return "", Validationf("invalid language code %q", code)
		}
	}
	return code, nil
}

func (s *service) CreateLanguage(ctx context.Context, req CreateLanguageRequest) (*Language, error) {
	code, err := normalizeLanguageCode(req.Code)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, Validationf("language name is required")
	}
	lang := &Language{
		Code:       code,
		Name:       name,
		NativeName: strings.TrimSpace(req.NativeName),
		IsActive:   req.Active || req.Default,
		CreatedAt:  s.now(),
	}
	if lang.NativeName == "" {
		lang.NativeName = name
	}

	err = s.repository.WithTx(ctx, func(tx Repository) error {
		if err := tx.CreateLanguage(ctx, lang); err != nil {
			return storageErr("create language", err)
		}
		if req.Default {
			return setDefault(ctx, tx, code)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "create_language", err)
	}
	lang.IsDefault = req.Default

	s.logger.InfoContext(ctx, "Language created", "language", code, "default", lang.IsDefault)
	return lang, nil
}

func (s *service) GetLanguage(ctx context.Context, code string) (*Language, error) {
	lang, err := s.repository.GetLanguage(ctx, strings.ToLower(strings.TrimSpace(code)))
	if err != nil {
		return nil, s.fail(ctx, "get_language", storageErr("get language", err))
	}
	return lang, nil
}

func (s *service) ListLanguages(ctx context.Context, activeOnly bool) ([]*Language, error) {
	langs, err := s.repository.ListLanguages(ctx)
	if err != nil {
		return nil, s.fail(ctx, "list_languages", storageErr("list languages", err))
	}
	if !activeOnly {
		return langs, nil
	}
	active := make([]*Language, 0, len(langs))
	for _, l := range langs {
		if l.IsActive {
			active = append(active, l)
		}
	}
	return active, nil
}

// SelectLanguage resolves the language a caller asked for. Unknown or
// inactive codes fall back to the default.
func (s *service) SelectLanguage(ctx context.Context, requested string) (*LanguageSelection, error) {
	langs, err := s.ListLanguages(ctx, true)
	if err != nil {
		return nil, err
	}
	sel := &LanguageSelection{Languages: langs}
	requested = strings.ToLower(strings.TrimSpace(requested))
	for _, l := range langs {
		if l.IsDefault {
			sel.Default = l
		}
		if l.Code == requested {
			sel.Current = l
		}
	}
	if sel.Default == nil {
		return nil, fmt.Errorf("%w: no default language configured", ErrLanguageNotFound)
	}
	if sel.Current == nil {
		sel.Current = sel.Default
	}
	return sel, nil
}

func (s *service) SetDefaultLanguage(ctx context.Context, code string) error {
	code = strings.ToLower(strings.TrimSpace(code))
	err := s.repository.WithTx(ctx, func(tx Repository) error {
		return setDefault(ctx, tx, code)
	})
	if err != nil {
		return s.fail(ctx, "set_default_language", err)
	}
	s.logger.InfoContext(ctx, "Default language changed", "language", code)
	return nil
}

// setDefault clears the previous default and marks code default and active.
// Translations into code are dropped: the default language is the record
// itself.
func setDefault(ctx context.Context, tx Repository, code string) error {
	target, err := tx.GetLanguage(ctx, code)
	if err != nil {
		return storageErr("get language", err)
	}
	langs, err := tx.ListLanguages(ctx)
	if err != nil {
		return storageErr("list languages", err)
	}
	for _, l := range langs {
		if l.IsDefault && l.Code != code {
			l.IsDefault = false
			if err := tx.UpdateLanguage(ctx, l); err != nil {
				return storageErr("update language", err)
			}
		}
	}
	if err := tx.DeleteTranslations(ctx, TranslationFilter{Language: code}); err != nil {
		return storageErr("delete translations", err)
	}
	target.IsDefault = true
	target.IsActive = true
	return storageErr("update language", tx.UpdateLanguage(ctx, target))
}

func (s *service) ToggleLanguage(ctx context.Context, code string, active bool) error {
	code = strings.ToLower(strings.TrimSpace(code))
	err := s.repository.WithTx(ctx, func(tx Repository) error {
		lang, err := tx.GetLanguage(ctx, code)
		if err != nil {
			return storageErr("get language", err)
		}
		if lang.IsDefault && !active {
			return fmt.Errorf("%w: %s", ErrDefaultLanguage, code)
		}
		lang.IsActive = active
		return storageErr("update language", tx.UpdateLanguage(ctx, lang))
	})
	if err != nil {
		return s.fail(ctx, "toggle_language", err)
	}
	s.logger.InfoContext(ctx, "Language toggled", "language", code, "active", active)
	return nil
}

// DeleteLanguage removes a non-default language and its translations.
func (s *service) DeleteLanguage(ctx context.Context, code string) error {
	code = strings.ToLower(strings.TrimSpace(code))
	err := s.repository.WithTx(ctx, func(tx Repository) error {
		lang, err := tx.GetLanguage(ctx, code)
		if err != nil {
			return storageErr("get language", err)
		}
		if lang.IsDefault {
			return fmt.Errorf("%w: %s", ErrDefaultLanguage, code)
		}
		if err := tx.DeleteTranslations(ctx, TranslationFilter{Language: code}); err != nil {
			return storageErr("delete translations", err)
		}
		return storageErr("delete language", tx.DeleteLanguage(ctx, code))
	})
	if err != nil {
		return s.fail(ctx, "delete_language", err)
	}
	s.logger.InfoContext(ctx, "Language deleted", "language", code)
	return nil
}

// readLanguage validates the language of a read. The boolean reports
// whether it is the default language.
func (s *service) readLanguage(ctx context.Context, code string) (string, bool, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return "", false, nil
	}
	lang, err := s.repository.GetLanguage(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return "", false, fmt.Errorf("%w: %q", ErrLanguageNotFound, code)
	}
	if err != nil {
		return "", false, storageErr("get language", err)
	}
	return lang.Code, lang.IsDefault, nil
}

func (s *service) GetTranslation(ctx context.Context, table string, recordID int64, field, lang string) (string, bool, error) {
	v, ok, err := s.overlay.Get(ctx, table, recordID, field, strings.ToLower(lang))
	if err != nil {
		return "", false, s.fail(ctx, "get_translation", err)
	}
	return v, ok, nil
}

func (s *service) GetTranslations(ctx context.Context, table string, recordID int64, lang string) (map[string]string, error) {
	out, err := s.overlay.GetAll(ctx, table, recordID, strings.ToLower(lang))
	if err != nil {
		return nil, s.fail(ctx, "get_translations", err)
	}
	return out, nil
}

func (s *service) GetAllTranslations(ctx context.Context, table string, recordID int64) (map[string]map[string]TranslationValue, error) {
	out, err := s.overlay.GetAllLanguages(ctx, table, recordID)
	if err != nil {
		return nil, s.fail(ctx, "get_all_translations", err)
	}
	return out, nil
}

func (s *service) UpsertTranslation(ctx context.Context, table string, recordID int64, field, lang, value string) error {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if err := s.overlay.Upsert(ctx, table, recordID, field, lang, value); err != nil {
		return s.fail(ctx, "upsert_translation", err)
	}
	s.notify(ctx, "translations_saved", s.eventSink.TranslationsSaved(ctx, table, recordID, lang, []string{field}))
	return nil
}

func (s *service) UpsertTranslations(ctx context.Context, table string, recordID int64, lang string, fields map[string]string) (int, error) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	saved, err := s.overlay.UpsertBatch(ctx, table, recordID, lang, fields)
	if err != nil {
		return 0, s.fail(ctx, "upsert_translations", err)
	}
	s.notify(ctx, "translations_saved", s.eventSink.TranslationsSaved(ctx, table, recordID, lang, saved))
	return len(saved), nil
}
