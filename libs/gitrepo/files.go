package gitrepo

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileInfo describes one indexable file of a snapshot
type FileInfo struct {
	Path      string
	Shasum    string
	SizeBytes int64
	Language  string
}

var skippedDirs = map[string]bool{
	"node_modules": true, "vendor": true, "dist": true, "build": true, "target": true,
	"__pycache__": true, "coverage": true, "bin": true, "obj": true, "venv": true,
	"env": true, "deps": true, "_deps": true, "third_party": true, "out": true,
	"cmake-build": true,
}

// extension -> language; files with other extensions are not indexed
var languages = map[string]string{
	".go": "go", ".py": "python", ".js": "javascript", ".jsx": "javascript",
	".ts": "typescript", ".tsx": "typescript", ".rs": "rust", ".java": "java",
	".kt": "kotlin", ".scala": "scala", ".c": "c", ".h": "c", ".cpp": "cpp",
	".cc": "cpp", ".cxx": "cpp", ".hpp": "cpp", ".cs": "csharp", ".rb": "ruby",
	".php": "php", ".swift": "swift", ".m": "objective-c", ".lua": "lua",
	".pl": "perl", ".r": "r", ".jl": "julia", ".ex": "elixir", ".exs": "elixir",
	".erl": "erlang", ".clj": "clojure", ".hs": "haskell", ".ml": "ocaml",
	".fs": "fsharp", ".dart": "dart", ".elm": "elm", ".vue": "vue",
	".svelte": "svelte", ".sql": "sql", ".sh": "shell", ".bash": "shell",
	".zsh": "shell", ".ps1": "powershell", ".yaml": "yaml", ".yml": "yaml",
	".toml": "toml", ".json": "json", ".xml": "xml", ".html": "html",
	".css": "css", ".scss": "scss", ".md": "markdown", ".mdx": "markdown",
	".rst": "rst", ".txt": "text", ".proto": "protobuf", ".graphql": "graphql",
	".tf": "terraform", ".nix": "nix", ".zig": "zig", ".sol": "solidity",
}

// Language returns the language for path, or "" when the file is not indexable.
func Language(path string) string {
	return languages[strings.ToLower(filepath.Ext(path))]
}

// ListFiles walks root and returns the relative paths of indexable files no
// larger than maxSize bytes (0 disables the limit). Hidden entries are skipped.
func ListFiles(root string, maxSize int64) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || skippedDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || Language(name) == "" {
			return nil
		}

		if maxSize > 0 {
			info, err := d.Info()
			if err != nil {
				return err
			}
			if info.Size() > maxSize {
				return nil
			}
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})

	return files, err
}

// GetFileInfo computes size, checksum and language of root/rel
func GetFileInfo(root, rel string) (*FileInfo, error) {
	full := filepath.Join(root, filepath.FromSlash(rel))

	f, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return nil, err
	}

	return &FileInfo{
		Path:      rel,
		Shasum:    hex.EncodeToString(h.Sum(nil)),
		SizeBytes: n,
		Language:  Language(rel),
	}, nil
}

// ReadFile reads root/rel as text
func ReadFile(root, rel string) (string, error) {
	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return "", err
	}
	return string(content), nil
}
