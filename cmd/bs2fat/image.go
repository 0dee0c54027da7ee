package main

import (
	"fmt"
	"io"

	"github.com/diskfs/go-diskfs"
	"github.com/dargueta/bs2fat/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// partitionRange is the location of a partition in an image, in bytes.
type partitionRange struct {
	Start int64
	Size  int64
}

// locateDiskfsPartition reads the partition table of the image at `path` and
// returns where partition `index` is. Partitions are numbered from 1. Both MBR
// and GPT tables are supported.
func locateDiskfsPartition(path string, index int) (partitionRange, error) {
	disk, err := diskfs.Open(path)
	if err != nil {
		return partitionRange{}, fmt.Errorf("open disk image: %w", err)
	}
	defer disk.Close()

	table, err := disk.GetPartitionTable()
	if err != nil {
		return partitionRange{}, fmt.Errorf("get partition table: %w", err)
	}

	partitions := table.GetPartitions()
	if index < 1 || index > len(partitions) {
		return partitionRange{}, errors.NewWithMessage(
			errors.ENOENT,
			fmt.Sprintf("no partition %d, image has %d", index, len(partitions)),
		)
	}

	part := partitions[index-1]
	return partitionRange{Start: part.GetStart(), Size: part.GetSize()}, nil
}

type readWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// sectionStream exposes a byte range of a file as a stream of its own.
type sectionStream struct {
	file   readWriterAt
	start  int64
	size   int64
	offset int64
}

func newSectionStream(file readWriterAt, start, size int64) *sectionStream {
	return &sectionStream{file: file, start: start, size: size}
}

func (s *sectionStream) Read(buffer []byte) (int, error) {
	if s.offset >= s.size {
		return 0, io.EOF
	}
	if remaining := s.size - s.offset; int64(len(buffer)) > remaining {
		buffer = buffer[:remaining]
	}

	n, err := s.file.ReadAt(buffer, s.start+s.offset)
	s.offset += int64(n)
	return n, err
}

func (s *sectionStream) Write(buffer []byte) (int, error) {
	if s.offset+int64(len(buffer)) > s.size {
		return 0, errors.NewWithMessage(
			errors.ENOSPC,
			fmt.Sprintf(
				"write of %d bytes at %d runs off the end of the partition (%d bytes)",
				len(buffer),
				s.offset,
				s.size,
			),
		)
	}

	n, err := s.file.WriteAt(buffer, s.start+s.offset)
	s.offset += int64(n)
	return n, err
}

func (s *sectionStream) Seek(offset int64, whence int) (int64, error) {
	var newOffset int64
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekCurrent:
		newOffset = s.offset + offset
	case io.SeekEnd:
		newOffset = s.size + offset
	default:
		return s.offset, errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("invalid whence %d", whence))
	}

	if newOffset < 0 {
		return s.offset, errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("can't seek to negative offset %d", newOffset))
	}
	s.offset = newOffset
	return newOffset, nil
}

// openImage opens the image at `path` and returns a stream over the volume in
// it, along with the volume's size. If `partition` is 0 the whole image is the
// volume.
func openImage(
	env *environment, path string, partition int, flag int,
) (afero.File, io.ReadWriteSeeker, int64, error) {
	file, err := env.fs.OpenFile(path, flag, 0)
	if err != nil {
		return nil, nil, 0, err
	}

	if partition == 0 {
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, nil, 0, err
		}
		return file, file, info.Size(), nil
	}

	location, err := env.locatePartition(path, partition)
	if err != nil {
		file.Close()
		return nil, nil, 0, err
	}

	env.logger.WithFields(log.Fields{
		"partition": partition,
		"start":     location.Start,
		"size":      location.Size,
	}).Debug("found partition")
	return file, newSectionStream(file, location.Start, location.Size), location.Size, nil
}
