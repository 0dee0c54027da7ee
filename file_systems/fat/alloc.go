package fat

import (
	"fmt"
	"math"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/bs2fat"
	"github.com/dargueta/bs2fat/errors"
	c "github.com/dargueta/bs2fat/file_systems/common"
)

// ClustersForBytes returns the number of clusters needed to hold `size` bytes.
func (geo SuperblockGeometry) ClustersForBytes(size uint64) uint64 {
	return (size + uint64(geo.ClusterSize) - 1) >> geo.ClusterBits
}

// ClusterChain returns every cluster in the chain beginning at `start`, in
// order. It fails if the chain runs into a free, bad, or out-of-range entry
// or loops back on itself.
func (vol *Volume) ClusterChain(start c.ClusterID) ([]c.ClusterID, error) {
	vol.fatLock.Lock()
	defer vol.fatLock.Unlock()
	return vol.clusterChain(start)
}

func (vol *Volume) clusterChain(start c.ClusterID) ([]c.ClusterID, error) {
	if !vol.geometry.IsValidCluster(start) {
		return nil, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("invalid cluster 0x%x cannot start a cluster chain", start),
		)
	}

	seen := bitmap.New(int(vol.geometry.MaxCluster))
	chain := []c.ClusterID{}
	current := start

	for {
		if seen.Get(int(current)) {
			return nil, errors.NewWithMessage(
				errors.EUCLEAN,
				fmt.Sprintf("cluster chain from %d loops back to cluster %d", start, current),
			)
		}
		seen.Set(int(current), true)
		chain = append(chain, current)

		next, err := vol.table.Get(current)
		if err != nil {
			return nil, err
		}
		if vol.table.IsEndOfChain(next) {
			return chain, nil
		}
		if !vol.geometry.IsValidCluster(next) || vol.table.IsBad(next) {
			return nil, errors.NewWithMessage(
				errors.EUCLEAN,
				fmt.Sprintf(
					"cluster %d followed by invalid cluster 0x%x at index %d in chain from %d",
					current,
					next,
					len(chain)-1,
					start,
				),
			)
		}
		current = next
	}
}

// AllocClusters allocates `count` free clusters and links them into a new
// chain, returned in order. The search starts after the most recently
// allocated cluster and wraps around the data region.
//
// If there aren't enough free clusters it returns [errors.ENOSPC] and the table
// is left untouched.
func (vol *Volume) AllocClusters(count uint) ([]c.ClusterID, error) {
	if count == 0 {
		return nil, errors.NewWithMessage(errors.EINVAL, "can't allocate 0 clusters")
	}

	vol.fatLock.Lock()
	defer vol.fatLock.Unlock()

	geo := &vol.geometry
	if free, known := geo.FreeClusters.Get(); known && uint(free) < count {
		return nil, errors.ErrNoSpaceOnDevice.WithMessage(
			fmt.Sprintf("need %d clusters, only %d free", count, free))
	}

	totalClusters := geo.TotalClusters()
	chain := make([]c.ClusterID, 0, count)
	cluster := c.ClusterID(geo.PreviousFree)

	for scanned := uint32(0); scanned < totalClusters && uint(len(chain)) < count; scanned++ {
		cluster++
		if uint32(cluster) >= geo.MaxCluster {
			cluster = FirstDataCluster
		}

		value, err := vol.table.Get(cluster)
		if err != nil {
			return nil, err
		}
		if value == ClusterFree {
			chain = append(chain, cluster)
		}
	}

	if uint(len(chain)) < count {
		// The table has fewer free clusters than we thought.
		geo.FreeClusters = KnownFreeCount(uint32(len(chain)))
		return nil, errors.ErrNoSpaceOnDevice.WithMessage(
			fmt.Sprintf("need %d clusters, only %d free", count, len(chain)))
	}

	for i, current := range chain {
		next := vol.table.EndOfChain()
		if i+1 < len(chain) {
			next = chain[i+1]
		}
		err := vol.table.Set(current, next)
		if err != nil {
			return nil, err
		}
	}

	geo.PreviousFree = uint32(chain[len(chain)-1])
	if free, known := geo.FreeClusters.Get(); known {
		geo.FreeClusters = KnownFreeCount(free - uint32(count))
	}
	return chain, nil
}

// FreeClusters marks every cluster of the chain starting at `start` as free.
// The whole chain is validated first so a corrupt chain isn't half-freed.
func (vol *Volume) FreeClusters(start c.ClusterID) error {
	vol.fatLock.Lock()
	defer vol.fatLock.Unlock()

	chain, err := vol.clusterChain(start)
	if err != nil {
		return err
	}

	for _, cluster := range chain {
		err = vol.table.Set(cluster, ClusterFree)
		if err != nil {
			return err
		}
	}

	if free, known := vol.geometry.FreeClusters.Get(); known {
		vol.geometry.FreeClusters = KnownFreeCount(free + uint32(len(chain)))
	}
	return nil
}

// CountFreeClusters scans the allocation table, records the result as the
// volume's free cluster count, and returns it.
func (vol *Volume) CountFreeClusters() (uint32, error) {
	vol.fatLock.Lock()
	defer vol.fatLock.Unlock()

	free := uint32(0)
	for cluster := c.ClusterID(FirstDataCluster); uint32(cluster) < vol.geometry.MaxCluster; cluster++ {
		value, err := vol.table.Get(cluster)
		if err != nil {
			return 0, err
		}
		if value == ClusterFree {
			free++
		}
	}

	vol.geometry.FreeClusters = KnownFreeCount(free)
	return free, nil
}

// Fallocate reserves space for the byte range [offset, offset+length) of a
// regular file. With `keepSize` the clusters are added without changing the
// file's size; otherwise the file is extended to cover the range.
func (vol *Volume) Fallocate(inode *Inode, offset, length int64, keepSize bool, now Timespec) error {
	if !inode.IsRegular() {
		return errors.NewWithMessage(errors.ENOTSUP, "can only preallocate regular files")
	}
	if offset < 0 || length <= 0 {
		return errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("invalid range: offset %d, length %d", offset, length))
	}
	if offset > math.MaxInt64-length {
		return errors.NewWithMessage(
			errors.EFBIG, fmt.Sprintf("range end overflows: offset %d, length %d", offset, length))
	}

	geo := vol.Geometry()
	endOffset := uint64(offset + length)

	inode.lock.Lock()
	sizeOnDisk := inode.Blocks << 9
	currentSize := uint64(inode.Size)
	inode.lock.Unlock()

	if !keepSize && endOffset <= currentSize {
		return nil
	}

	if endOffset > sizeOnDisk {
		needed := geo.ClustersForBytes(endOffset - sizeOnDisk)
		err := vol.addClusters(inode, uint(needed))
		if err != nil {
			return err
		}
	}

	if !keepSize {
		inode.lock.Lock()
		inode.Size = int64(endOffset)
		inode.lock.Unlock()
		vol.TruncateTime(inode, now, bs2fat.TimeChange|bs2fat.TimeModify)
	}
	return nil
}

// addClusters appends `count` newly allocated clusters to the end of the
// inode's chain.
func (vol *Volume) addClusters(inode *Inode, count uint) error {
	clusterSize := uint64(vol.Geometry().ClusterSize)
	newChain, err := vol.AllocClusters(count)
	if err != nil {
		return err
	}

	inode.lock.Lock()
	defer inode.lock.Unlock()

	if inode.FirstCluster == ClusterFree {
		inode.FirstCluster = newChain[0]
	} else {
		vol.fatLock.Lock()
		oldChain, err := vol.clusterChain(inode.FirstCluster)
		if err == nil {
			err = vol.table.Set(oldChain[len(oldChain)-1], newChain[0])
		}
		vol.fatLock.Unlock()

		if err != nil {
			if freeErr := vol.FreeClusters(newChain[0]); freeErr != nil {
				return errors.NewFromError(errors.ErrnoOf(err), err).Wrap(freeErr)
			}
			return err
		}
	}

	inode.Blocks += uint64(count) * clusterSize >> 9
	return nil
}
