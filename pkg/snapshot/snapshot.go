// Package snapshot implements the binary dump format and its atomic
// save/load procedures: spec.md §4.6's exact tag layout, modeled after
// original_source/redis/src/redis.c's rdbSave/rdbLoad (reached through
// the save/bgsave/shutdown command bodies) but with the tag set
// trimmed to the three value types this server supports.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/memkv/memkv/pkg/dict"
	"github.com/memkv/memkv/pkg/object"
	"github.com/memkv/memkv/pkg/store"
)

const (
	magic = "REDIS0000"

	tagSelectDB = 0xFE
	tagEOF      = 0xFF

	typeString = 0
	typeList   = 1
	typeSet    = 2
)

// Save writes every non-empty database in s to filename, via a
// temp-file-then-rename sequence so a crash mid-write never leaves a
// truncated file in the real location. On success it zeroes Dirty and
// stamps LastSave.
func Save(s *store.Store, filename string) error {
	dir := filepath.Dir(filename)
	tmp, err := os.CreateTemp(dir, "temp-*.rdb")
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := writeDump(tmp, s); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("snapshot: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("snapshot: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(tmpName, filename); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("snapshot: rename: %w", err)
	}

	s.Dirty = 0
	s.LastSave = time.Now()
	return nil
}

func writeDump(w io.Writer, s *store.Store) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(magic); err != nil {
		return err
	}
	for i, db := range s.DBs {
		if db.Dict.Len() == 0 {
			continue
		}
		if err := bw.WriteByte(tagSelectDB); err != nil {
			return err
		}
		if err := writeUint32(bw, uint32(i)); err != nil {
			return err
		}
		it := db.Dict.NewIterator()
		for {
			key, value, ok := it.Next()
			if !ok {
				break
			}
			obj := value.(*object.Object)
			if err := writeEntry(bw, key, obj); err != nil {
				return err
			}
		}
	}
	if err := bw.WriteByte(tagEOF); err != nil {
		return err
	}
	return bw.Flush()
}

func writeEntry(w *bufio.Writer, key string, obj *object.Object) error {
	var typeTag byte
	switch obj.Type {
	case object.String:
		typeTag = typeString
	case object.List:
		typeTag = typeList
	case object.Set:
		typeTag = typeSet
	default:
		return fmt.Errorf("unknown value type %v", obj.Type)
	}
	if err := w.WriteByte(typeTag); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(key))); err != nil {
		return err
	}
	if _, err := w.WriteString(key); err != nil {
		return err
	}

	switch obj.Type {
	case object.String:
		return writeBytes(w, obj.Bytes())
	case object.List:
		values := obj.List().Values()
		if err := writeUint32(w, uint32(len(values))); err != nil {
			return err
		}
		for _, v := range values {
			if err := writeBytes(w, v.(*object.Object).Bytes()); err != nil {
				return err
			}
		}
		return nil
	case object.Set:
		members := obj.Set().Keys()
		if err := writeUint32(w, uint32(len(members))); err != nil {
			return err
		}
		for _, m := range members {
			if err := writeBytes(w, []byte(m)); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

func writeUint32(w io.Writer, n uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], n)
	_, err := w.Write(buf[:])
	return err
}

func writeBytes(w io.Writer, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// Load reads filename and populates s, replacing the contents of every
// database it mentions. Duplicate keys within one DB block are a fatal
// error, matching the "duplicate keys" abort in spec.md §4.6.
func Load(s *store.Store, filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("snapshot: open: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var header [9]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return fmt.Errorf("snapshot: read magic: %w", err)
	}
	if string(header[:]) != magic {
		return fmt.Errorf("snapshot: bad magic %q", header[:])
	}

	var currentDB *dict.Dict
	for {
		tag, err := br.ReadByte()
		if err != nil {
			return fmt.Errorf("snapshot: read tag: %w", err)
		}
		switch tag {
		case tagEOF:
			return nil
		case tagSelectDB:
			idx, err := readUint32(br)
			if err != nil {
				return fmt.Errorf("snapshot: read db index: %w", err)
			}
			db := s.DBAt(int(idx))
			if db == nil {
				return fmt.Errorf("snapshot: db index %d out of range", idx)
			}
			db.Dict.Clear()
			currentDB = db.Dict
		default:
			if currentDB == nil {
				return fmt.Errorf("snapshot: entry before any SELECTDB")
			}
			if err := readEntry(br, currentDB, tag, s); err != nil {
				return err
			}
		}
	}
}

func readEntry(r io.Reader, d *dict.Dict, typeTag byte, s *store.Store) error {
	keyLen, err := readUint32(r)
	if err != nil {
		return fmt.Errorf("snapshot: read key length: %w", err)
	}
	key, err := readExact(r, keyLen)
	if err != nil {
		return fmt.Errorf("snapshot: read key: %w", err)
	}
	if d.Exists(string(key)) {
		return fmt.Errorf("snapshot: duplicate key %q", key)
	}

	switch typeTag {
	case typeString:
		b, err := readBytes(r)
		if err != nil {
			return fmt.Errorf("snapshot: read string value: %w", err)
		}
		obj := s.Freelist.NewString(b)
		d.Add(string(key), obj)

	case typeList:
		count, err := readUint32(r)
		if err != nil {
			return fmt.Errorf("snapshot: read list count: %w", err)
		}
		obj := s.Freelist.NewList()
		for i := uint32(0); i < count; i++ {
			b, err := readBytes(r)
			if err != nil {
				return fmt.Errorf("snapshot: read list element: %w", err)
			}
			obj.List().PushBack(s.Freelist.NewString(b))
		}
		d.Add(string(key), obj)

	case typeSet:
		count, err := readUint32(r)
		if err != nil {
			return fmt.Errorf("snapshot: read set count: %w", err)
		}
		obj := s.Freelist.NewSet()
		for i := uint32(0); i < count; i++ {
			b, err := readBytes(r)
			if err != nil {
				return fmt.Errorf("snapshot: read set member: %w", err)
			}
			obj.Set().Add(string(b), struct{}{})
		}
		d.Add(string(key), obj)

	default:
		return fmt.Errorf("snapshot: unknown type tag %d", typeTag)
	}
	return nil
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	return readExact(r, n)
}

func readExact(r io.Reader, n uint32) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// TempFileName builds a "temp-<pid>.rdb" path in dir. Save does not use
// it: Save creates its working file with os.CreateTemp and a
// "temp-*.rdb" pattern, and nothing else in the module calls it.
func TempFileName(dir string, pid int) string {
	return filepath.Join(dir, "temp-"+strconv.Itoa(pid)+".rdb")
}
