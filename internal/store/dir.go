package store

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"mhcal/internal/schedule"
)

const (
	recordExt     = ".mhc"
	logFileName   = ".mhc-db-log"
	intersectSlot = "intersect"
)

// Dir keeps one record file per entry below a root directory, in a slot
// subdirectory chosen from the entry's first occurrence, plus an
// append-only change log at the root.
type Dir struct {
	root string

	mu sync.Mutex
	// uid -> record files, bound from the Record-Id inside each file.
	// More than one file means duplicates on disk; all go on the next
	// Put or Remove.
	paths map[string][]string
}

// OpenDir creates root if needed.
func OpenDir(root string) (*Dir, error) {
	if root == "" {
		return nil, errors.New("store: data directory is empty")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, err
	}
	return &Dir{root: root, paths: make(map[string][]string)}, nil
}

func (d *Dir) Root() string { return d.root }

// Slot returns the directory, relative to the root, an entry is stored in:
// YYYY/MM for a one-off entry whose dates all fall in one month, and
// "intersect" for anything recurring, spanning months, a todo, or never
// occurring.
func Slot(e *schedule.Entry) string {
	if e.IsRecurring() || e.IsTodo() {
		return intersectSlot
	}
	first, ok := e.FirstOccurrence()
	if !ok {
		return intersectSlot
	}
	for _, day := range e.Dates.Dates() {
		if day.Year() != first.Year() || day.Month() != first.Month() {
			return intersectSlot
		}
	}
	return fmt.Sprintf("%04d/%02d", first.Year(), int(first.Month()))
}

// ReadAll reads every record file below the root.
func (d *Dir) ReadAll() ([]Record, error) {
	var out []Record
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordExt) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out = append(out, Record{Source: path, Data: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", d.root, err)
	}
	return out, nil
}

// Put writes e's record into its slot, removing a previous file for the
// same uid in another slot.
func (d *Dir) Put(e *schedule.Entry) error {
	slotDir := filepath.Join(d.root, filepath.FromSlash(Slot(e)))
	path := filepath.Join(slotDir, urlEncode(e.UID)+recordExt)

	if err := os.MkdirAll(slotDir, 0o700); err != nil {
		return err
	}
	if err := writeFileAtomic(path, e.Marshal()); err != nil {
		return fmt.Errorf("store: write %s: %w", path, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.removeFiles(e.UID, path); err != nil {
		return err
	}
	d.paths[e.UID] = []string{path}
	return nil
}

// Remove deletes every record file bound to uid. Unknown uids are ignored.
func (d *Dir) Remove(uid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.removeFiles(uid, ""); err != nil {
		return err
	}
	delete(d.paths, uid)
	return nil
}

// bind records that the file at path holds uid.
func (d *Dir) bind(uid, path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !slices.Contains(d.paths[uid], path) {
		d.paths[uid] = append(d.paths[uid], path)
	}
}

// removeFiles deletes the files bound to uid except keep. Called with mu
// held.
func (d *Dir) removeFiles(uid, keep string) error {
	for _, old := range d.paths[uid] {
		if old == keep {
			continue
		}
		if err := os.Remove(old); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Append adds c to the change log.
func (d *Dir) Append(c Change) error {
	f, err := os.OpenFile(filepath.Join(d.root, logFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(c.Line() + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadLog returns the change log, oldest first. A missing log is empty.
func (d *Dir) ReadLog() ([]Change, error) {
	f, err := os.Open(filepath.Join(d.root, logFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Change
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		if sc.Text() == "" {
			continue
		}
		c, err := parseChange(sc.Text())
		if err != nil {
			return out, fmt.Errorf("%s:%d: %w", logFileName, line, err)
		}
		out = append(out, c)
	}
	return out, sc.Err()
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".mhc-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// urlEncode keeps file names portable for arbitrary uids.
func urlEncode(uid string) string {
	return strings.ReplaceAll(url.QueryEscape(uid), "+", "%20")
}

// Open loads every record below dir into a new Store that persists its
// mutations back to dir. Records that fail to parse are returned alongside
// the usable store. Files are tracked by the Record-Id they hold, whatever
// their name.
func Open(dir string, opts ...Option) (*Store, []error, error) {
	d, err := OpenDir(dir)
	if err != nil {
		return nil, nil, err
	}
	records, err := d.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	s := New(opts...)
	loaded, loadErrs := s.load(records)
	for _, r := range loaded {
		d.bind(r.uid, r.source)
	}
	s.backend = d
	return s, loadErrs, nil
}
