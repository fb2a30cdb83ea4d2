package ihex

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		wantErr error
		want    Record
	}{
		{
			name: "data",
			raw:  Record{Type: TypeData, Address: 0x4010, Data: []byte{1, 2, 3}}.Bytes(),
			want: Record{Type: TypeData, Address: 0x4010, Data: []byte{1, 2, 3}},
		},
		{
			name: "eof",
			raw:  []byte{0x00, 0x00, 0x00, 0x01, 0xFF},
			want: Record{Type: TypeEOF, Data: []byte{}},
		},
		{
			name:    "bad checksum",
			raw:     []byte{0x01, 0x00, 0x00, 0x00, 0xAA, 0x00},
			wantErr: ErrChecksum,
		},
		{
			name:    "length byte over limit",
			raw:     append([]byte{253, 0, 0, 0}, make([]byte, 254)...),
			wantErr: ErrLength,
		},
		{
			name:    "truncated",
			raw:     []byte{0x04, 0x00, 0x00, 0x00, 0x01},
			wantErr: ErrLength,
		},
		{
			name:    "too short",
			raw:     []byte{0x00, 0x00},
			wantErr: ErrLength,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Type != tt.want.Type || got.Address != tt.want.Address || !bytes.Equal(got.Data, tt.want.Data) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRecord_StringMatchesIntelFormat(t *testing.T) {
	r := Record{Type: TypeExtLinAddr, Data: []byte{0x00, 0x01}}
	if got := r.String(); got != ":020000040001F9" {
		t.Fatalf("got %s", got)
	}
	if got := (Record{Type: TypeEOF}).String(); got != ":00000001FF" {
		t.Fatalf("got %s", got)
	}
}

func TestParseReader(t *testing.T) {
	src := strings.Join([]string{
		":020000040000FA",
		":0400100001020304E2",
		"",
		":00000001FF",
	}, "\n")

	recs, err := ParseReader(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseReader: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[1].Address != 0x0010 || !bytes.Equal(recs[1].Data, []byte{1, 2, 3, 4}) {
		t.Fatalf("data record = %+v", recs[1])
	}
}

func TestParseReader_Errors(t *testing.T) {
	cases := map[string]string{
		"missing start code": "0400100001020304E2\n:00000001FF",
		"bad checksum":       ":0400100001020304E3\n:00000001FF",
		"no eof":             ":0400100001020304E2",
		"bad hex":            ":04ZZ",
	}
	for name, src := range cases {
		if _, err := ParseReader(strings.NewReader(src)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestFromImage_RoundTrip(t *testing.T) {
	img := make([]byte, 300)
	for i := range img {
		img[i] = byte(i * 7)
	}

	// straddle a 64 KiB boundary
	base := uint32(0x1FF80)
	recs := FromImage(img, base, 64)

	if recs[len(recs)-1].Type != TypeEOF {
		t.Fatalf("last record is not EOF")
	}

	var ext int
	for _, r := range recs {
		if r.Type == TypeExtLinAddr {
			ext++
		}
		if _, err := Decode(r.Bytes()); err != nil {
			t.Fatalf("record %s does not decode: %v", r, err)
		}
	}
	if ext != 2 {
		t.Fatalf("expected 2 extended address records, got %d", ext)
	}

	back, err := Image(recs, base)
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	if !bytes.Equal(back, img) {
		t.Fatalf("image round trip mismatch")
	}
}

func TestImage_BelowBase(t *testing.T) {
	recs := []Record{{Type: TypeData, Address: 0x0010, Data: []byte{1}}}
	if _, err := Image(recs, 0x4000); err == nil {
		t.Fatalf("expected error for address below base")
	}
}
