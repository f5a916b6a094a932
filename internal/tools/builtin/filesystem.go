package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSystemTool implements read/write/list file operations confined to a
// root directory (spec has no opinion on a sandbox; path
// traversal check is kept and tightened to a configured root rather than
// the process's arbitrary working directory).
type FileSystemTool struct {
	root string
}

// NewFileSystemTool creates the "filesystem" builtin tool, confined to
// root.
func NewFileSystemTool(root string) *FileSystemTool {
	return &FileSystemTool{root: root}
}

func (FileSystemTool) Name() string { return "filesystem" }

func (t *FileSystemTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	op, _ := args["operation"].(string)
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)

	cleanPath, err := t.resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("filesystem: %w", err)
	}

	switch op {
	case "read_file":
		return readFile(cleanPath)
	case "write_file":
		return writeFile(cleanPath, content)
	case "append_file":
		return appendFile(cleanPath, content)
	case "delete_file":
		return deleteFile(cleanPath)
	case "list_directory":
		return listDirectory(cleanPath)
	case "file_exists":
		return fileExistsCheck(cleanPath)
	case "create_directory":
		return createDirectory(cleanPath)
	default:
		return nil, fmt.Errorf("filesystem: unknown operation %q", op)
	}
}

// resolvePath cleans path and rejects anything that would escape root.
func (t *FileSystemTool) resolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	joined := filepath.Join(t.root, path)
	cleanRoot := filepath.Clean(t.root)
	cleanJoined := filepath.Clean(joined)
	if cleanJoined != cleanRoot && !strings.HasPrefix(cleanJoined, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes sandbox root: %s", path)
	}
	return cleanJoined, nil
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return fmt.Sprintf("File content (%d bytes):\n%s", len(data), string(data)), nil
}

func writeFile(path, content string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path), nil
}

func appendFile(path, content string) (string, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	n, err := f.WriteString(content)
	if err != nil {
		return "", fmt.Errorf("appending to file: %w", err)
	}
	return fmt.Sprintf("Successfully appended %d bytes to %s", n, path), nil
}

func deleteFile(path string) (string, error) {
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("deleting file: %w", err)
	}
	return fmt.Sprintf("Successfully deleted %s", path), nil
}

func listDirectory(path string) (string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("reading directory: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Sprintf("Directory %s is empty", path), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Directory %s (%d items):\n", path, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		kind := "FILE"
		if e.IsDir() {
			kind = "DIR "
		}
		fmt.Fprintf(&b, " [%s] %s (%d bytes)\n", kind, e.Name(), info.Size())
	}
	return b.String(), nil
}

func fileExistsCheck(path string) (string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Sprintf("Path does not exist: %s", path), nil
	}
	if err != nil {
		return "", fmt.Errorf("checking path: %w", err)
	}
	kind := "file"
	if info.IsDir() {
		kind = "directory"
	}
	return fmt.Sprintf("Path exists: %s (%s, %d bytes)", path, kind, info.Size()), nil
}

func createDirectory(path string) (string, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}
	return fmt.Sprintf("Successfully created directory: %s", path), nil
}
