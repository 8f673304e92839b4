package mmr

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"wimblechain.dev/node/internal/chain"
)

const hashRecordSize = 32

// FileBackend persists one MMR's leaves to a flat hash file and its pruned
// positions to a prune-list file, per spec §6 ("three MMR files per
// accumulator (data, hash, prune-list)"). The data file (the leaf's original
// pre-image, e.g. a serialized Output) is owned by the caller via
// WriteData/ReadData; FileBackend itself only guarantees the hash-file
// invariant that Size()/Get() depend on.
type FileBackend struct {
	hashFile  *os.File
	dataFile  *os.File
	pruneFile *os.File
	size      uint64
	pruned    map[uint64]bool
}

// OpenFileBackend opens (creating if absent) the three backing files for one
// MMR under dir/name.{hash,data,prune}.
func OpenFileBackend(dir, name string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	hashFile, err := os.OpenFile(filepath.Join(dir, name+".hash"), os.O_RDWR|os.O_CREATE, 0o640)
	if err != nil {
		return nil, fmt.Errorf("mmr: open hash file: %w", err)
	}
	dataFile, err := os.OpenFile(filepath.Join(dir, name+".data"), os.O_RDWR|os.O_CREATE, 0o640)
	if err != nil {
		hashFile.Close()
		return nil, fmt.Errorf("mmr: open data file: %w", err)
	}
	pruneFile, err := os.OpenFile(filepath.Join(dir, name+".prune"), os.O_RDWR|os.O_CREATE, 0o640)
	if err != nil {
		hashFile.Close()
		dataFile.Close()
		return nil, fmt.Errorf("mmr: open prune file: %w", err)
	}

	fi, err := hashFile.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size()%hashRecordSize != 0 {
		return nil, fmt.Errorf("mmr: hash file %s has truncated trailing record", name)
	}

	pruned, err := loadPruneSet(pruneFile)
	if err != nil {
		return nil, err
	}

	return &FileBackend{
		hashFile:  hashFile,
		dataFile:  dataFile,
		pruneFile: pruneFile,
		size:      uint64(fi.Size()) / hashRecordSize,
		pruned:    pruned,
	}, nil
}

func loadPruneSet(f *os.File) (map[uint64]bool, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	n := fi.Size() / 8
	set := make(map[uint64]bool, n)
	buf := make([]byte, 8)
	for i := int64(0); i < n; i++ {
		if _, err := f.ReadAt(buf, i*8); err != nil {
			return nil, err
		}
		set[binary.LittleEndian.Uint64(buf)] = true
	}
	return set, nil
}

func (b *FileBackend) Close() error {
	err1 := b.hashFile.Close()
	err2 := b.dataFile.Close()
	err3 := b.pruneFile.Close()
	if err1 != nil {
		return err1
	}
	if err2 != nil {
		return err2
	}
	return err3
}

func (b *FileBackend) Append(h chain.Hash) error {
	if _, err := b.hashFile.WriteAt(h[:], int64(b.size)*hashRecordSize); err != nil {
		return err
	}
	b.size++
	return nil
}

func (b *FileBackend) Get(pos uint64) (chain.Hash, bool, error) {
	if pos >= b.size {
		return chain.Hash{}, false, nil
	}
	var h chain.Hash
	if _, err := b.hashFile.ReadAt(h[:], int64(pos)*hashRecordSize); err != nil {
		return chain.Hash{}, false, err
	}
	return h, true, nil
}

func (b *FileBackend) Size() (uint64, error) {
	return b.size, nil
}

func (b *FileBackend) Truncate(size uint64) error {
	if err := b.hashFile.Truncate(int64(size) * hashRecordSize); err != nil {
		return err
	}
	b.size = size
	for pos := range b.pruned {
		if pos >= size {
			delete(b.pruned, pos)
		}
	}
	return b.rewritePruneFile()
}

func (b *FileBackend) Remove(pos uint64) error {
	if b.pruned == nil {
		b.pruned = make(map[uint64]bool)
	}
	if b.pruned[pos] {
		return nil
	}
	b.pruned[pos] = true
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], pos)
	fi, err := b.pruneFile.Stat()
	if err != nil {
		return err
	}
	_, err = b.pruneFile.WriteAt(buf[:], fi.Size())
	return err
}

func (b *FileBackend) Unprune(pos uint64) error {
	if !b.pruned[pos] {
		return nil
	}
	delete(b.pruned, pos)
	return b.rewritePruneFile()
}

func (b *FileBackend) Pruned(pos uint64) (bool, error) {
	return b.pruned[pos], nil
}

func (b *FileBackend) rewritePruneFile() error {
	if err := b.pruneFile.Truncate(0); err != nil {
		return err
	}
	off := int64(0)
	for pos := range b.pruned {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], pos)
		if _, err := b.pruneFile.WriteAt(buf[:], off); err != nil {
			return err
		}
		off += 8
	}
	return nil
}

// WriteData appends the leaf's original pre-image, length-prefixed, to the
// end of the data file. pos is not used to place it: entries land in call
// order, alongside the hash file rather than at a per-position slot.
func (b *FileBackend) WriteData(pos uint64, data []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	off, err := b.dataFile.Seek(0, os.SEEK_END)
	if err != nil {
		return err
	}
	if _, err := b.dataFile.WriteAt(lenBuf[:], off); err != nil {
		return err
	}
	_, err = b.dataFile.WriteAt(data, off+4)
	_ = pos // position is tracked by the hash file; data is append-only alongside it
	return err
}
