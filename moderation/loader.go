package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"path"
	"room-sync/errors"
	"slices"
	"strings"

	"github.com/samber/lo"
)

//go:embed censored/*.txt
var censoredFolder embed.FS

// WordList is the merged content of every language file.
type WordList struct {
	Words     []string
	Languages []string
}

// CensoredLoader reads one "<lang>.txt" word list per language from a filesystem.
// Blank lines and lines starting with '#' are skipped.
type CensoredLoader struct {
	fsys fs.FS
}

func NewCensoredLoader(fsys fs.FS) *CensoredLoader {
	return &CensoredLoader{fsys: fsys}
}

// NewEmbeddedLoader reads the word lists shipped with the binary.
func NewEmbeddedLoader() *CensoredLoader {
	return NewCensoredLoader(censoredFolder)
}

// LoadAll returns the sorted, de-duplicated words found under dir.
func (l *CensoredLoader) LoadAll(dir string) (WordList, error) {
	entries, err := fs.ReadDir(l.fsys, dir)
	if err != nil {
		return WordList{}, err
	}

	var list WordList
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".txt" {
			continue
		}
		data, err := fs.ReadFile(l.fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return WordList{}, err
		}
		words, err := parseWords(data)
		if err != nil {
			return WordList{}, err
		}
		list.Languages = append(list.Languages, strings.TrimSuffix(entry.Name(), ".txt"))
		list.Words = append(list.Words, words...)
	}

	list.Words = lo.Uniq(list.Words)
	if len(list.Words) == 0 {
		return WordList{}, errors.ErrEmptyWords
	}
	slices.Sort(list.Words)
	return list, nil
}

// parseWords scans line by line so both \n and \r\n endings work.
func parseWords(data []byte) ([]string, error) {
	var words []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, scanner.Err()
}
