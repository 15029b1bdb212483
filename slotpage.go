package foster

import (
	"encoding/binary"
	"sort"
)

// Page is a fixed-size, byte-aligned memory region split into a slot
// vector (growing up from the header) and a payload heap (growing down
// from the end of Data). This is spec.md's SlotArray (§3, §4.1):
// allocation, shifting, and deletion of payloads and slots are the only
// primitives defined here — everything key/value-shaped is layered on
// top in kv.go and node.go.
//
// The layout mirrors the teacher's Page (page.go: PageHeader + Data
// []byte with offset-addressed slots and keys), generalized from
// 1-byte length-prefixed keys to spec.md's {pmnk, payload_ptr, ghost}
// slot and block-aligned payload heap.
type Page struct {
	Data []byte
}

const (
	// basic header: slotEnd uint32, payloadBegin uint32, level uint8
	offSlotEnd      = 0
	offPayloadBegin = 4
	offLevel        = 8
	basicHeaderSize = 16 // padded to block alignment

	// the five foster fields (§3, §4.4) live in a small fixed table
	// right after the basic header, addressed by tag. Table entries are
	// metadata ({ptr, valid}); the values they point to are payloads in
	// the same heap as records, per spec.md's "ugly trick" (§9).
	fosterTableOffset = basicHeaderSize
	fosterEntrySize    = 8 // ptr uint32 @0, valid byte @4, pad
	FieldCount         = 5
	fosterTableSize    = FieldCount * fosterEntrySize

	slotVectorOffset = fosterTableOffset + fosterTableSize

	// SlotSize is the fixed width of a slot record: pmnk uint64 @0,
	// payloadPtr uint32 @8, ghost byte @12, padding to 16.
	SlotSize = 16

	// payloadLenPrefix is the width of the length prefix every payload
	// carries so get_payload can self-describe its extent.
	payloadLenPrefix = 2
)

// FieldTag identifies one of the five foster fields (spec.md §3/§4.4).
type FieldTag uint8

const (
	FieldLowKey FieldTag = iota
	FieldHighKey
	FieldFosterKey
	FieldFosterPtr
	FieldPrefix
)

// NewPage allocates a fresh, empty page of the given size at the given
// tree level (0 = leaf).
func NewPage(pageSize uint32, level uint8) *Page {
	p := &Page{Data: make([]byte, pageSize)}
	p.setPayloadBegin(pageSize)
	p.setSlotEnd(0)
	p.SetLevel(level)
	return p
}

func ceilBlocks(nbytes int) uint32 {
	if nbytes <= 0 {
		return 0
	}
	blocks := (uint32(nbytes) + BlockSize - 1) / BlockSize
	return blocks * BlockSize
}

// --- basic header ---

func (p *Page) slotEnd() uint32 {
	return binary.LittleEndian.Uint32(p.Data[offSlotEnd:])
}

func (p *Page) setSlotEnd(n uint32) {
	binary.LittleEndian.PutUint32(p.Data[offSlotEnd:], n)
}

// SlotCount returns the number of slots currently in the vector
// (including any ghosted/deleted-but-not-yet-compacted slots).
func (p *Page) SlotCount() uint32 { return p.slotEnd() }

func (p *Page) payloadBegin() uint32 {
	return binary.LittleEndian.Uint32(p.Data[offPayloadBegin:])
}

func (p *Page) setPayloadBegin(v uint32) {
	binary.LittleEndian.PutUint32(p.Data[offPayloadBegin:], v)
}

// Level returns the node's tree level (0 = leaf).
func (p *Page) Level() uint8 { return p.Data[offLevel] }

// SetLevel sets the node's tree level.
func (p *Page) SetLevel(lvl uint8) { p.Data[offLevel] = lvl }

// slotBoundary is the smallest legal payloadBegin value: the first byte
// past the slot vector's current extent. Invariant I1 requires
// payloadBegin >= slotBoundary at all times.
func (p *Page) slotBoundary() uint32 {
	return slotVectorOffset + p.slotEnd()*SlotSize
}

// FreeBytes reports the gap between the slot vector and the payload
// heap (property P1's margin).
func (p *Page) FreeBytes() uint32 {
	bound := p.slotBoundary()
	begin := p.payloadBegin()
	if begin < bound {
		return 0
	}
	return begin - bound
}

// --- slot vector ---

func slotOffset(i uint32) uint32 { return slotVectorOffset + i*SlotSize }

func (p *Page) slotBytes(i uint32) []byte {
	off := slotOffset(i)
	return p.Data[off : off+SlotSize]
}

// Pmnk returns slot i's poor-man's normalized key.
func (p *Page) Pmnk(i uint32) uint64 {
	return binary.BigEndian.Uint64(p.slotBytes(i)[0:8])
}

// SetPmnk sets slot i's pmnk.
func (p *Page) SetPmnk(i uint32, v uint64) {
	binary.BigEndian.PutUint64(p.slotBytes(i)[0:8], v)
}

// PayloadPtr returns slot i's payload pointer (a byte offset into Data).
func (p *Page) PayloadPtr(i uint32) uint32 {
	return binary.LittleEndian.Uint32(p.slotBytes(i)[8:12])
}

// SetPayloadPtr sets slot i's payload pointer.
func (p *Page) SetPayloadPtr(i uint32, ptr uint32) {
	binary.LittleEndian.PutUint32(p.slotBytes(i)[8:12], ptr)
}

// Ghost reports whether slot i is a tombstone (deleted but not yet
// compacted out of the slot vector).
func (p *Page) Ghost(i uint32) bool {
	return p.slotBytes(i)[12] != 0
}

// SetGhost marks slot i live or dead.
func (p *Page) SetGhost(i uint32, ghost bool) {
	if ghost {
		p.slotBytes(i)[12] = 1
	} else {
		p.slotBytes(i)[12] = 0
	}
}

// InsertSlot shifts the slot vector to open a new, zero-valued slot at
// index i, and returns whether there was room. Non-trivial fields
// (pmnk, payload pointer) are left zero; the caller fills them in.
func (p *Page) InsertSlot(i uint32) bool {
	n := p.slotEnd()
	if p.slotBoundary()+SlotSize > p.payloadBegin() {
		return false
	}
	if i > n {
		i = n
	}
	srcStart := slotOffset(i)
	srcEnd := slotOffset(n)
	dstStart := slotOffset(i + 1)
	if srcEnd > srcStart {
		copy(p.Data[dstStart:dstStart+(srcEnd-srcStart)], p.Data[srcStart:srcEnd])
	}
	for j := range p.Data[srcStart:dstStart] {
		p.Data[srcStart+uint32(j)] = 0
	}
	p.setSlotEnd(n + 1)
	return true
}

// DeleteSlot removes slot i from the vector, shifting later slots down.
func (p *Page) DeleteSlot(i uint32) {
	n := p.slotEnd()
	if i >= n {
		return
	}
	srcStart := slotOffset(i + 1)
	srcEnd := slotOffset(n)
	dstStart := slotOffset(i)
	if srcEnd > srcStart {
		copy(p.Data[dstStart:dstStart+(srcEnd-srcStart)], p.Data[srcStart:srcEnd])
	}
	lastStart := slotOffset(n - 1)
	for j := range p.Data[lastStart : lastStart+SlotSize] {
		p.Data[lastStart+uint32(j)] = 0
	}
	p.setSlotEnd(n - 1)
}

// SortSlots restores slot-vector order by pmnk, keeping slots with equal
// pmnks in their current relative order. Used by TruncateKeys and its
// rollback, which re-append every slot.
func (p *Page) SortSlots() {
	n := int(p.slotEnd())
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	type rec struct {
		pmnk uint64
		ptr  uint32
		dead bool
	}
	recs := make([]rec, n)
	for i := 0; i < n; i++ {
		recs[i] = rec{p.Pmnk(uint32(i)), p.PayloadPtr(uint32(i)), p.Ghost(uint32(i))}
	}
	sort.SliceStable(idx, func(a, b int) bool { return recs[idx[a]].pmnk < recs[idx[b]].pmnk })
	for i, j := range idx {
		p.SetPmnk(uint32(i), recs[j].pmnk)
		p.SetPayloadPtr(uint32(i), recs[j].ptr)
		p.SetGhost(uint32(i), recs[j].dead)
	}
}

// --- payload heap ---

// AllocatePayload reserves space at the heap's current head (growing
// downward) for a payload of dataLen bytes and returns its pointer. It
// does not move any existing payload.
func (p *Page) AllocatePayload(dataLen int) (uint32, bool) {
	need := ceilBlocks(dataLen + payloadLenPrefix)
	begin := p.payloadBegin()
	if need > begin {
		return 0, false
	}
	newBegin := begin - need
	if newBegin < p.slotBoundary() {
		return 0, false
	}
	p.setPayloadBegin(newBegin)
	return newBegin, true
}

// AllocateEndPayload reserves space for a foster-field payload (§4.4).
// The payload heap only ever grows from one edge (payloadBegin, shrinking
// toward the slot vector as records and fields accumulate), so this is
// the same allocation as AllocatePayload: foster fields need no separate
// physical region, only their own addressing path outside the ordinary
// slot vector (the foster field table, below).
func (p *Page) AllocateEndPayload(dataLen int) (uint32, bool) {
	return p.AllocatePayload(dataLen)
}

// FreePayload releases a payload of dataLen bytes at ptr, shifting the
// intervening (more-recently-allocated) payloads toward the tail to
// close the gap. Freeing the most recently allocated payload (ptr ==
// payloadBegin) has nothing to shift, so payloadBegin is moved directly.
func (p *Page) FreePayload(ptr uint32, dataLen int) bool {
	need := ceilBlocks(dataLen + payloadLenPrefix)
	begin := p.payloadBegin()
	if ptr < begin {
		return false // precondition violation
	}
	if ptr == begin {
		p.setPayloadBegin(begin + need)
		return true
	}
	return p.ShiftPayloads(begin+need, begin, ptr-begin)
}

// ShiftPayloads moves the byte run [from, from+count) to [to, to+count),
// re-targets every slot (and, via retarget, every foster-field entry)
// whose payload pointer falls in the affected range, and adjusts
// payloadBegin if the heap head moved. It is the primitive deallocation
// uses to close the gap left by freeing anything but the most recently
// allocated payload. Fails softly if a head-ward shift would run into
// the slot vector. count is assumed > 0; callers with nothing to move
// handle that case directly.
func (p *Page) ShiftPayloads(to, from, count uint32) bool {
	if count == 0 {
		return true
	}
	delta := int64(to) - int64(from)
	lo := from
	if to < lo {
		lo = to
	}
	hi := from + count
	if h := to + count; h > hi {
		hi = h
	}
	if delta < 0 {
		newLo := int64(lo) + delta
		if newLo < int64(p.slotBoundary()) {
			return false
		}
	} else if to+count > uint32(len(p.Data)) {
		return false
	}

	copy(p.Data[to:to+count], p.Data[from:from+count])

	for i := uint32(0); i < p.slotEnd(); i++ {
		ptr := p.PayloadPtr(i)
		if ptr >= lo && ptr < hi {
			p.SetPayloadPtr(i, uint32(int64(ptr)+delta))
		}
	}
	p.retargetFosterFields(lo, hi, delta)

	if lo <= p.payloadBegin() {
		p.setPayloadBegin(uint32(int64(p.payloadBegin()) + delta))
	}
	return true
}

// WritePayload writes a length-prefixed payload at ptr. The caller must
// have reserved enough space via AllocatePayload/AllocateEndPayload.
func (p *Page) WritePayload(ptr uint32, data []byte) {
	binary.LittleEndian.PutUint16(p.Data[ptr:], uint16(len(data)))
	copy(p.Data[ptr+payloadLenPrefix:], data)
}

// ReadPayload returns a copy of the payload bytes stored at ptr.
func (p *Page) ReadPayload(ptr uint32) []byte {
	n := binary.LittleEndian.Uint16(p.Data[ptr:])
	out := make([]byte, n)
	copy(out, p.Data[ptr+payloadLenPrefix:ptr+payloadLenPrefix+uint32(n)])
	return out
}

// PayloadLenAt returns the byte length of the payload stored at ptr,
// without copying its contents.
func (p *Page) PayloadLenAt(ptr uint32) int {
	return int(binary.LittleEndian.Uint16(p.Data[ptr:]))
}

// GetPayloadForSlot is a convenience wrapper combining PayloadPtr and
// ReadPayload for slot i.
func (p *Page) GetPayloadForSlot(i uint32) []byte {
	return p.ReadPayload(p.PayloadPtr(i))
}

// --- foster field table ---
//
// The five foster fields (LowKey, HighKey, FosterKey, FosterPtr,
// Prefix) live outside the ordinary slot vector, in a small fixed
// table right after the basic header (spec.md §9's "ugly trick"):
// addressed by tag instead of by slot index, though their values are
// ordinary length-prefixed payloads allocated out of the same heap
// every record uses. Because they live outside the slot vector,
// ShiftPayloads's automatic slot retargeting does not reach them —
// retargetFosterFields is the table's own half of that primitive.

func fosterEntryOffset(tag FieldTag) uint32 {
	return fosterTableOffset + uint32(tag)*fosterEntrySize
}

// HasField reports whether field tag currently holds a value.
func (p *Page) HasField(tag FieldTag) bool {
	off := fosterEntryOffset(tag)
	return p.Data[off+4] != 0
}

// fieldPtr returns field tag's payload pointer (valid only if HasField).
func (p *Page) fieldPtr(tag FieldTag) uint32 {
	off := fosterEntryOffset(tag)
	return binary.LittleEndian.Uint32(p.Data[off : off+4])
}

func (p *Page) setFieldPtr(tag FieldTag, ptr uint32, valid bool) {
	off := fosterEntryOffset(tag)
	binary.LittleEndian.PutUint32(p.Data[off:off+4], ptr)
	if valid {
		p.Data[off+4] = 1
	} else {
		p.Data[off+4] = 0
	}
}

// GetField returns a copy of field tag's value, or (nil, false) if unset.
func (p *Page) GetField(tag FieldTag) ([]byte, bool) {
	if !p.HasField(tag) {
		return nil, false
	}
	return p.ReadPayload(p.fieldPtr(tag)), true
}

// SetField stores value under field tag, allocating it at the heap's
// current head. If the field already holds a value, its old storage is
// freed first. Returns false (NoSpace) if the heap has no room.
func (p *Page) SetField(tag FieldTag, value []byte) bool {
	if p.HasField(tag) {
		p.ClearField(tag)
	}
	ptr, ok := p.AllocateEndPayload(len(value))
	if !ok {
		return false
	}
	p.WritePayload(ptr, value)
	p.setFieldPtr(tag, ptr, true)
	return true
}

// ClearField releases field tag's storage, if any.
func (p *Page) ClearField(tag FieldTag) {
	if !p.HasField(tag) {
		return
	}
	ptr := p.fieldPtr(tag)
	n := p.PayloadLenAt(ptr)
	p.FreePayload(ptr, n)
	p.setFieldPtr(tag, 0, false)
}

// retargetFosterFields is ShiftPayloads's counterpart for the foster
// field table: any field pointer inside [lo, hi) moves by delta.
func (p *Page) retargetFosterFields(lo, hi uint32, delta int64) {
	for tag := FieldTag(0); tag < FieldCount; tag++ {
		if !p.HasField(tag) {
			continue
		}
		ptr := p.fieldPtr(tag)
		if ptr >= lo && ptr < hi {
			p.setFieldPtr(tag, uint32(int64(ptr)+delta), true)
		}
	}
}
