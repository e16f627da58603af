package market

import (
	"bytes"
	"errors"
	"testing"
)

func sampleListing() *Listing {
	l := &Listing{
		Price:      1_000_000,
		RoyaltyBps: 250,
		Active:     true,
		Bump:       254,
	}
	for i := range l.Seller {
		l.Seller[i] = 0x11
		l.Asset[i] = 0x22
		l.Creator[i] = 0x33
	}
	return l
}

func sampleEscrow() *Escrow {
	e := &Escrow{
		Amount:  1_000_000,
		Settled: false,
		Bump:    251,
	}
	for i := range e.Listing {
		e.Listing[i] = 0x44
		e.Buyer[i] = 0x55
	}
	return e
}

func TestEncodedSizes(t *testing.T) {
	if got := len(EncodeListing(sampleListing())); got != ListingSize {
		t.Fatalf("listing encodes to %d bytes, want %d", got, ListingSize)
	}
	if got := len(EncodeEscrow(sampleEscrow())); got != EscrowSize {
		t.Fatalf("escrow encodes to %d bytes, want %d", got, EscrowSize)
	}
	if ListingSize != 116 || EscrowSize != 82 {
		t.Fatalf("layout constants drifted: %d/%d", ListingSize, EscrowSize)
	}
}

func TestListingRoundTrip(t *testing.T) {
	want := sampleListing()
	got, err := DecodeListing(EncodeListing(want))
	if err != nil {
		t.Fatalf("DecodeListing error: %v", err)
	}
	if *got != *want {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, want)
	}
}

func TestEscrowRoundTrip(t *testing.T) {
	want := sampleEscrow()
	want.Settled = true
	got, err := DecodeEscrow(EncodeEscrow(want))
	if err != nil {
		t.Fatalf("DecodeEscrow error: %v", err)
	}
	if *got != *want {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, want)
	}
}

func TestDecodeTooShort(t *testing.T) {
	if _, err := DecodeListing(make([]byte, 7)); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
	if _, err := DecodeEscrow(nil); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestDecodeDiscriminatorMismatch(t *testing.T) {
	// An escrow buffer must be rejected as a listing even though the bytes
	// after the prefix are well formed for the other type.
	if _, err := DecodeListing(EncodeEscrow(sampleEscrow())); !errors.Is(err, ErrDiscriminatorMismatch) {
		t.Fatalf("expected ErrDiscriminatorMismatch, got %v", err)
	}
	if _, err := DecodeEscrow(EncodeListing(sampleListing())); !errors.Is(err, ErrDiscriminatorMismatch) {
		t.Fatalf("expected ErrDiscriminatorMismatch, got %v", err)
	}
}

func TestDecodeMalformedFields(t *testing.T) {
	truncated := EncodeListing(sampleListing())[:ListingSize-1]
	if _, err := DecodeListing(truncated); !errors.Is(err, ErrMalformedFields) {
		t.Fatalf("expected ErrMalformedFields for short body, got %v", err)
	}

	padded := append(EncodeEscrow(sampleEscrow()), 0x00)
	if _, err := DecodeEscrow(padded); !errors.Is(err, ErrMalformedFields) {
		t.Fatalf("expected ErrMalformedFields for long body, got %v", err)
	}

	badBool := EncodeListing(sampleListing())
	badBool[DiscriminatorSize+106] = 2
	if _, err := DecodeListing(badBool); !errors.Is(err, ErrMalformedFields) {
		t.Fatalf("expected ErrMalformedFields for bad boolean, got %v", err)
	}
}

func TestDiscriminatorsDiffer(t *testing.T) {
	if bytes.Equal(listingDiscriminator[:], escrowDiscriminator[:]) {
		t.Fatalf("listing and escrow discriminators collide")
	}
}
