package world

import (
	"encoding/binary"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/spriteserver/internal/core/models"
	"github.com/zeusync/spriteserver/pkg/generic"
)

var digests = generic.NewPool(xxhash.New, (*xxhash.Digest).Reset)

// Snapshot is the live set at one instant. Sprites are ordered by insertion.
type Snapshot struct {
	Tick    uint64
	Taken   time.Time
	Hash    uint64
	Sprites []models.Sprite
}

// Len returns the number of sprites in the snapshot.
func (s Snapshot) Len() int { return len(s.Sprites) }

func (s Snapshot) clone() Snapshot {
	out := s
	out.Sprites = make([]models.Sprite, len(s.Sprites))
	copy(out.Sprites, s.Sprites)
	return out
}

// hashSprites digests the sprite contents only, so two snapshots with the same
// sprites in the same places share a hash regardless of tick number.
func hashSprites(sprites []models.Sprite) uint64 {
	d := digests.Get()
	defer digests.Put(d)

	buf := make([]byte, 0, 8*6)
	for _, sp := range sprites {
		buf = buf[:0]
		buf = binary.LittleEndian.AppendUint64(buf, uint64(sp.ID))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(sp.X)))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(sp.Y)))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(sp.DX)))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(sp.DY)))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(sp.Color))
		_, _ = d.Write(buf)
	}
	return d.Sum64()
}
