package main

import (
	"bytes"
	"path/filepath"
	"strings"
)

var extensionLanguages = map[string]Language{
	".ts":  LanguageTypeScript,
	".mts": LanguageTypeScript,
	".cts": LanguageTypeScript,
	".tsx": LanguageTSX,
	".js":  LanguageTSX,
	".jsx": LanguageTSX,
	".mjs": LanguageTSX,
	".cjs": LanguageTSX,
	".go":  LanguageGo,
}

// DetectLanguage picks the language from a file extension. Inline sources
// without a name are TypeScript.
func DetectLanguage(filename string) (Language, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return LanguageTypeScript, nil
	}
	lang, ok := extensionLanguages[ext]
	if !ok {
		return "", &LanguageError{Filename: filename, Extension: ext}
	}
	return lang, nil
}

// ParseLanguage validates a language name from a flag or config value
func ParseLanguage(name string) (Language, error) {
	switch lang := Language(strings.ToLower(strings.TrimSpace(name))); lang {
	case "":
		return "", nil
	case LanguageTypeScript, LanguageTSX, LanguageGo:
		return lang, nil
	case "ts":
		return LanguageTypeScript, nil
	case "golang":
		return LanguageGo, nil
	default:
		return "", &LanguageError{Name: name}
	}
}

// ParseMode validates a pruning mode name
func ParseMode(name string) (Mode, error) {
	switch mode := Mode(strings.ToLower(strings.TrimSpace(name))); mode {
	case "":
		return ModeRefCount, nil
	case ModeRefCount, ModeClosure:
		return mode, nil
	default:
		return "", &ModeError{Name: name}
	}
}

// resolveLanguage returns lang when set, otherwise the language detected
// from filename
func resolveLanguage(filename string, lang Language) (Language, error) {
	if lang != "" {
		return ParseLanguage(string(lang))
	}
	return DetectLanguage(filename)
}

// parseSource parses src with the backend for lang
func parseSource(filename string, lang Language, src []byte) (syntaxTree, error) {
	switch lang {
	case LanguageTypeScript, LanguageTSX:
		tree, err := parseTypeScript(filename, lang, src)
		if err != nil {
			return nil, err
		}
		return tree, nil
	case LanguageGo:
		tree, err := parseGo(filename, src)
		if err != nil {
			return nil, err
		}
		return tree, nil
	default:
		return nil, &LanguageError{Name: string(lang)}
	}
}

// normalizeSource strips a UTF-8 byte order mark and converts CRLF line endings
func normalizeSource(src []byte) []byte {
	src = bytes.TrimPrefix(src, []byte("\xef\xbb\xbf"))
	return bytes.ReplaceAll(src, []byte("\r\n"), []byte("\n"))
}

// Format parses and re-renders a source without pruning anything
func Format(filename string, lang Language, src []byte) ([]byte, error) {
	lang, err := resolveLanguage(filename, lang)
	if err != nil {
		return nil, err
	}
	tree, err := parseSource(filename, lang, normalizeSource(src))
	if err != nil {
		return nil, err
	}
	return tree.Render()
}
