package imds

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/awslabs/eksnode/pkg/config"
)

func TestNodeIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		meta    InstanceMetadata
		family  config.IPFamily
		want    string
		wantErr error
	}{
		{
			name:   "ipv4",
			meta:   InstanceMetadata{LocalIPv4: netip.MustParseAddr("10.0.1.15")},
			family: config.IPFamilyIPv4,
			want:   "10.0.1.15",
		},
		{
			name: "ipv6 picks first address",
			meta: InstanceMetadata{IPv6Addresses: []netip.Addr{
				netip.MustParseAddr("2600:1f13::1"),
				netip.MustParseAddr("2600:1f13::2"),
			}},
			family: config.IPFamilyIPv6,
			want:   "2600:1f13::1",
		},
		{
			name:    "ipv4 missing",
			meta:    InstanceMetadata{},
			family:  config.IPFamilyIPv4,
			wantErr: ErrNoNodeIP,
		},
		{
			name:    "ipv6 missing",
			meta:    InstanceMetadata{LocalIPv4: netip.MustParseAddr("10.0.1.15")},
			family:  config.IPFamilyIPv6,
			wantErr: ErrNoNodeIP,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := tc.meta.NodeIP(tc.family)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("NodeIP() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NodeIP() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("NodeIP() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseCIDRBlocks(t *testing.T) {
	t.Parallel()

	blocks, err := parseCIDRBlocks("10.0.0.0/16\n192.168.0.0/24")
	if err != nil {
		t.Fatalf("parseCIDRBlocks() error = %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("parseCIDRBlocks() returned %d blocks, want 2", len(blocks))
	}
	if blocks[0].String() != "10.0.0.0/16" || blocks[1].String() != "192.168.0.0/24" {
		t.Fatalf("parseCIDRBlocks() = %v", blocks)
	}

	if _, err := parseCIDRBlocks("not-a-cidr"); err == nil {
		t.Fatal("parseCIDRBlocks() expected error for malformed input")
	}
}
