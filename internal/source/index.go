package source

import (
	"path"
	"regexp"
	"sort"
	"strconv"
)

// CaptureFile is one event capture in the archive.
type CaptureFile struct {
	Path        string
	EventNumber uint64
	Compressed  bool
}

// CaptureIndex holds the ordered list of capture files for a run.
type CaptureIndex struct {
	files   []CaptureFile
	byEvent map[uint64]int
}

// Capture file naming pattern: event-{number}.json or event-{number}.json.zst
// Example: event-00000042.json.zst
var captureFilePattern = regexp.MustCompile(`^event-(\d+)\.json(\.zst)?$`)

// NewCaptureIndex creates an empty index.
func NewCaptureIndex() *CaptureIndex {
	return &CaptureIndex{byEvent: make(map[uint64]int)}
}

// Add registers a file if its name matches the capture pattern. Returns
// false for non-capture files (manifests, partial uploads, and so on).
func (idx *CaptureIndex) Add(filePath string) bool {
	m := captureFilePattern.FindStringSubmatch(path.Base(filePath))
	if m == nil {
		return false
	}
	event, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return false
	}
	// A compressed capture replaces a plain one with the same event number.
	if i, ok := idx.byEvent[event]; ok {
		idx.files[i].Path = filePath
		idx.files[i].Compressed = m[2] != ""
		return true
	}
	idx.files = append(idx.files, CaptureFile{
		Path:        filePath,
		EventNumber: event,
		Compressed:  m[2] != "",
	})
	idx.byEvent[event] = len(idx.files) - 1
	return true
}

// Sort orders the index by event number. Call once after all Adds.
func (idx *CaptureIndex) Sort() {
	sort.Slice(idx.files, func(i, j int) bool {
		return idx.files[i].EventNumber < idx.files[j].EventNumber
	})
	for i := range idx.files {
		idx.byEvent[idx.files[i].EventNumber] = i
	}
}

// Files returns the indexed captures in order.
func (idx *CaptureIndex) Files() []CaptureFile {
	return idx.files
}

// Count returns the number of indexed captures.
func (idx *CaptureIndex) Count() int {
	return len(idx.files)
}

// Lookup returns the capture for an event number.
func (idx *CaptureIndex) Lookup(event uint64) (CaptureFile, bool) {
	i, ok := idx.byEvent[event]
	if !ok {
		return CaptureFile{}, false
	}
	return idx.files[i], true
}
