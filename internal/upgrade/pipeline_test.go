package upgrade

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/cherryCheese/HouWu-CMM/internal/flash"
	"github.com/cherryCheese/HouWu-CMM/internal/ihex"
)

const blockSize = 256

// ---- fakes ----

type failingFlash struct {
	flash.Flash
	failProgram bool
	failErase   bool
}

func (f *failingFlash) Program(addr uint32, buf []byte) error {
	if f.failProgram {
		return errors.New("spi timeout")
	}
	return f.Flash.Program(addr, buf)
}

func (f *failingFlash) Erase(addr uint32, length int) error {
	if f.failErase {
		return errors.New("spi timeout")
	}
	return f.Flash.Erase(addr, length)
}

type countKicker struct{ n int }

func (k *countKicker) Kick() { k.n++ }

func newMem(t *testing.T) *flash.Mem {
	t.Helper()
	m, err := flash.NewMem(flash.Geometry{Size: 16 * blockSize, BlockSize: blockSize}, nil)
	if err != nil {
		t.Fatalf("NewMem: %v", err)
	}
	return m
}

func newPipeline(t *testing.T, f flash.Flash, start uint32) *Pipeline {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	return New(f, Options{FirmwareStart: start, Log: log})
}

func dataRec(addr uint16, data []byte) []byte {
	return ihex.Record{Type: ihex.TypeData, Address: addr, Data: data}.Bytes()
}

func eofRec() []byte {
	return ihex.Record{Type: ihex.TypeEOF}.Bytes()
}

func send(t *testing.T, p *Pipeline, raw []byte) {
	t.Helper()
	if _, err := p.SendData(raw); err != nil {
		t.Fatalf("SendData: %v", err)
	}
}

func readFlash(t *testing.T, f flash.Flash, addr uint32, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if err := f.Read(addr, b); err != nil {
		t.Fatalf("Read: %v", err)
	}
	return b
}

// ---- tests ----

func TestPipeline_HelloWorldScenario(t *testing.T) {
	f := newMem(t)
	p := newPipeline(t, f, 0)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.State() != Erasing {
		t.Fatalf("state after start = %s", p.State())
	}

	payload := []byte("hello world!")
	send(t, p, dataRec(0, payload))

	if got := readFlash(t, f, blockSize, 12); !bytes.Equal(got, payload) {
		t.Fatalf("staged bytes = %q", got)
	}
	if p.ImageSize() != 12 {
		t.Fatalf("last addr = %d, want 12", p.ImageSize())
	}
	if p.State() != Receiving {
		t.Fatalf("state = %s", p.State())
	}

	sealed := Seal(payload)
	send(t, p, dataRec(12, sealed[12:]))

	done, err := p.SendData(eofRec())
	if err != nil || !done {
		t.Fatalf("EOF: done=%v err=%v", done, err)
	}

	if err := p.Activate(1000); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if p.State() != Scheduled {
		t.Fatalf("state after activate = %s", p.State())
	}
}

func TestPipeline_CorruptedPayloadFailsVerify(t *testing.T) {
	f := newMem(t)
	p := newPipeline(t, f, 0)

	payload := []byte("hello world!")
	sealed := Seal(payload)
	corrupt := append([]byte{}, payload...)
	corrupt[3] ^= 0x01

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	send(t, p, dataRec(0, corrupt))
	send(t, p, dataRec(12, sealed[12:]))
	send(t, p, eofRec())

	err := p.Activate(0)
	var verr *VerifyError
	if !errors.As(err, &verr) {
		t.Fatalf("Activate err = %v, want VerifyError", err)
	}
	if p.State() != Failed {
		t.Fatalf("state = %s", p.State())
	}

	if written, _ := p.Poll(10000); written {
		t.Fatalf("header written after failed verify")
	}
	hdr, err := ReadHeader(f)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if hdr.Valid() {
		t.Fatalf("header must stay unwritten")
	}
}

func TestPipeline_HeaderWrittenAfterDelayNeverSooner(t *testing.T) {
	f := newMem(t)
	p := newPipeline(t, f, 0)

	img := Seal([]byte("firmware"))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	send(t, p, dataRec(0, img))
	send(t, p, eofRec())

	var at uint32 = 0xFFFFF800 // activation across a clock wrap
	if err := p.Activate(at); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	if written, err := p.Poll(at + DefaultActivationDelay - 1); written || err != nil {
		t.Fatalf("early poll: written=%v err=%v", written, err)
	}
	if hdr, _ := ReadHeader(f); hdr.Valid() {
		t.Fatalf("header written before delay")
	}

	written, err := p.Poll(at + DefaultActivationDelay)
	if !written || err != nil {
		t.Fatalf("poll at delay: written=%v err=%v", written, err)
	}
	if p.State() != Activated {
		t.Fatalf("state = %s", p.State())
	}

	hdr, err := ReadHeader(f)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if !hdr.Valid() || hdr.Size != uint32(len(img)) {
		t.Fatalf("header = %+v", hdr)
	}

	if written, _ := p.Poll(at + 2*DefaultActivationDelay); written {
		t.Fatalf("header written twice")
	}
}

func TestPipeline_BadRecordLeavesFlashAlone(t *testing.T) {
	f := newMem(t)
	p := newPipeline(t, f, 0)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	send(t, p, dataRec(0, []byte{1, 2, 3, 4}))

	bad := dataRec(4, []byte{5, 6, 7, 8})
	bad[len(bad)-1]++

	_, err := p.SendData(bad)
	if !errors.Is(err, ihex.ErrChecksum) {
		t.Fatalf("err = %v, want checksum error", err)
	}
	if p.ImageSize() != 4 {
		t.Fatalf("last addr moved to %d", p.ImageSize())
	}
	if p.State() != Receiving {
		t.Fatalf("state = %s", p.State())
	}
	if got := readFlash(t, f, blockSize+4, 4); !bytes.Equal(got, []byte{0xFF, 0xFF, 0xFF, 0xFF}) {
		t.Fatalf("flash touched: % x", got)
	}

	// retransmission is accepted
	send(t, p, dataRec(4, []byte{5, 6, 7, 8}))
	if p.ImageSize() != 8 {
		t.Fatalf("last addr = %d", p.ImageSize())
	}
}

func TestPipeline_ExtendedAddressAndRebase(t *testing.T) {
	f := newMem(t)
	p := newPipeline(t, f, 0x10000)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err := p.SendData(dataRec(0x0004, []byte{0xAA}))
	if !errors.Is(err, ErrAddress) {
		t.Fatalf("err = %v, want ErrAddress", err)
	}

	send(t, p, ihex.Record{Type: ihex.TypeExtLinAddr, Data: []byte{0x00, 0x01}}.Bytes())
	send(t, p, dataRec(0x0004, []byte{0xAA, 0xBB}))

	if got := readFlash(t, f, blockSize+4, 2); !bytes.Equal(got, []byte{0xAA, 0xBB}) {
		t.Fatalf("staged = % x", got)
	}
	if p.ImageSize() != 6 {
		t.Fatalf("last addr = %d", p.ImageSize())
	}
}

func TestPipeline_StateGuards(t *testing.T) {
	f := newMem(t)
	p := newPipeline(t, f, 0)

	if _, err := p.SendData(eofRec()); !errors.Is(err, ErrState) {
		t.Fatalf("send before start: %v", err)
	}
	if err := p.Activate(0); !errors.Is(err, ErrState) {
		t.Fatalf("activate before start: %v", err)
	}

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	send(t, p, dataRec(0, Seal([]byte{1, 2, 3})))

	if err := p.Activate(0); err != ErrNoEOF {
		t.Fatalf("activate without EOF: %v", err)
	}
	if p.State() != Receiving {
		t.Fatalf("missing EOF must not fail the upgrade, state = %s", p.State())
	}
}

func TestPipeline_TooSmallImage(t *testing.T) {
	p := newPipeline(t, newMem(t), 0)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	send(t, p, dataRec(0, []byte{0x42}))
	send(t, p, eofRec())

	if err := p.Activate(0); !errors.Is(err, ErrImageTooSmall) {
		t.Fatalf("err = %v", err)
	}
	if p.State() != Failed {
		t.Fatalf("state = %s", p.State())
	}
}

func TestPipeline_FlashFailures(t *testing.T) {
	ff := &failingFlash{Flash: newMem(t)}
	p := newPipeline(t, ff, 0)

	ff.failErase = true
	if err := p.Start(); err == nil {
		t.Fatalf("erase failure not reported")
	}
	if p.State() != Failed {
		t.Fatalf("state = %s", p.State())
	}

	ff.failErase = false
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ff.failProgram = true
	if _, err := p.SendData(dataRec(0, []byte{1})); err == nil {
		t.Fatalf("program failure not reported")
	}
	if p.State() != Failed {
		t.Fatalf("state = %s", p.State())
	}
}

func TestPipeline_StartCancelsScheduledActivation(t *testing.T) {
	f := newMem(t)
	p := newPipeline(t, f, 0)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	send(t, p, dataRec(0, Seal([]byte("abc"))))
	send(t, p, eofRec())
	if err := p.Activate(0); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	if err := p.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if written, _ := p.Poll(DefaultActivationDelay * 2); written {
		t.Fatalf("restart did not cancel activation")
	}
	if hdr, _ := ReadHeader(f); hdr.Valid() {
		t.Fatalf("header present after restart")
	}
}

func TestPipeline_MultiChunkImage(t *testing.T) {
	f := newMem(t)
	k := &countKicker{}
	log, _ := logtest.NewNullLogger()
	p := New(f, Options{FirmwareStart: DefaultFirmwareStart, Kicker: k, Log: log})

	img := make([]byte, 1000)
	for i := range img {
		img[i] = byte(i*31 + 7)
	}
	sealed := Seal(img)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for _, rec := range ihex.FromImage(sealed, DefaultFirmwareStart, 32) {
		send(t, p, rec.Bytes())
	}

	if err := p.Activate(0); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if k.n < 4 {
		t.Fatalf("verify serviced the watchdog %d times", k.n)
	}
	if p.ImageSize() != uint32(len(sealed)) {
		t.Fatalf("image size = %d", p.ImageSize())
	}
}

func TestSeal_LittleEndianTrailer(t *testing.T) {
	img := []byte("xyz")
	sealed := Seal(img)
	sum := Checksum(img)

	if sealed[3] != byte(sum) || sealed[4] != byte(sum>>8) {
		t.Fatalf("trailer % x, checksum 0x%04x", sealed[3:], sum)
	}
	if !bytes.Equal(img, []byte("xyz")) {
		t.Fatalf("Seal modified its input")
	}
}

func TestState_String(t *testing.T) {
	if Scheduled.String() != "scheduled" || State(99).String() != "unknown" {
		t.Fatalf("unexpected names")
	}
}

type headerCounter struct {
	flash.Flash
	writes int
}

func (h *headerCounter) Program(addr uint32, buf []byte) error {
	if addr == 0 {
		h.writes++
	}
	return h.Flash.Program(addr, buf)
}

func TestPipeline_RepeatedActivate(t *testing.T) {
	f := &headerCounter{Flash: newMem(t)}
	p := newPipeline(t, f, 0)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	send(t, p, dataRec(0, Seal([]byte("hello world!"))))
	send(t, p, eofRec())

	if err := p.Activate(0); err != nil {
		t.Fatalf("first Activate: %v", err)
	}
	// re-verify restarts the delay
	if err := p.Activate(1000); err != nil {
		t.Fatalf("Activate while scheduled: %v", err)
	}
	if p.State() != Scheduled {
		t.Fatalf("state = %s", p.State())
	}
	if written, _ := p.Poll(DefaultActivationDelay); written {
		t.Fatalf("header written before the restarted delay")
	}
	if written, err := p.Poll(1000 + DefaultActivationDelay); !written || err != nil {
		t.Fatalf("poll: written=%v err=%v", written, err)
	}

	if err := p.Activate(5000); err != nil {
		t.Fatalf("Activate after activation: %v", err)
	}
	if written, _ := p.Poll(5000 + DefaultActivationDelay); written {
		t.Fatalf("header written twice")
	}
	if p.State() != Activated || f.writes != 1 {
		t.Fatalf("state = %s, header writes = %d", p.State(), f.writes)
	}
}
