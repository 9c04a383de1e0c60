// Copyright 2026 The Botvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package botvisor

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Language is the script-language family of a bot's entry.  It selects
// the interpreter, and is always declared or detected from project
// contents, never inferred from the entry's file name.
type Language string

const (
	LangNode   Language = "node"
	LangPython Language = "python"
)

// ManifestName is the optional file in a checkout that declares how
// the bot is run.
const ManifestName = "botvisor.yaml"

// Manifest is the content of ManifestName.
type Manifest struct {
	Entry    string `yaml:"entry"`
	Language string `yaml:"language"`
}

// ParseLanguage accepts the usual spellings of each family.  The empty
// string parses to the empty Language, meaning "not declared".
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "node", "nodejs", "node.js", "javascript", "js":
		return LangNode, nil
	case "python", "python3", "py":
		return LangPython, nil
	}
	return "", ErrBadRequest
}

// DefaultEntry is the entry used when none is declared.
func DefaultEntry(lang Language) string {
	if lang == LangPython {
		return "main.py"
	}
	return "index.js"
}

// ReadManifest loads the manifest from dir.  A missing manifest is not
// an error; it yields nil.
func ReadManifest(dir string) (*Manifest, error) {
	b, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m := &Manifest{}
	if err := yaml.Unmarshal(b, m); err != nil {
		return nil, err
	}
	return m, nil
}

var langMarkers = []struct {
	file string
	lang Language
}{
	{"package.json", LangNode},
	{"requirements.txt", LangPython},
	{"pyproject.toml", LangPython},
	{"Pipfile", LangPython},
}

// DetectLanguage inspects a checkout.  Project marker files win; then
// the interpreter named on the entry's #! line; otherwise node.
func DetectLanguage(dir, entry string) Language {
	for _, m := range langMarkers {
		if _, err := os.Stat(filepath.Join(dir, m.file)); err == nil {
			return m.lang
		}
	}
	if entry != "" {
		if lang := shebangLanguage(filepath.Join(dir, entry)); lang != "" {
			return lang
		}
	}
	return LangNode
}

func shebangLanguage(path string) Language {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	line, _ := bufio.NewReader(f).ReadString('\n')
	if !strings.HasPrefix(line, "#!") {
		return ""
	}
	switch {
	case strings.Contains(line, "python"):
		return LangPython
	case strings.Contains(line, "node"):
		return LangNode
	}
	return ""
}

// Resolve settles the language and entry for a checkout in dir.
// Explicit values win over the manifest, which wins over detection.
func Resolve(dir string, lang Language, entry string) (Language, string, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return "", "", err
	}
	if m != nil {
		if lang == "" {
			if lang, err = ParseLanguage(m.Language); err != nil {
				return "", "", err
			}
		}
		if entry == "" {
			entry = m.Entry
		}
	}
	if lang == "" {
		lang = DetectLanguage(dir, entry)
	}
	if entry == "" {
		entry = DefaultEntry(lang)
	}
	return lang, entry, nil
}

// Runtime knows how to invoke each interpreter.
type Runtime struct {
	Node          string
	Python        string
	MemoryLimitMB int
}

// DefaultRuntime uses node and python3 from PATH, with a 170MB heap
// ceiling for node.
var DefaultRuntime = Runtime{
	Node:          "node",
	Python:        "python3",
	MemoryLimitMB: 170,
}

// CommandFor returns the program and arguments that run entry.
func (rt Runtime) CommandFor(lang Language, entry string) (string, []string) {
	if lang == LangPython {
		return rt.Python, []string{entry}
	}
	args := []string{}
	if rt.MemoryLimitMB > 0 {
		args = append(args, "--max-old-space-size="+strconv.Itoa(rt.MemoryLimitMB))
	}
	return rt.Node, append(args, entry)
}
