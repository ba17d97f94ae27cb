package config

import (
	"strings"
	"testing"
)

func validJoinOptions() JoinOptions {
	return JoinOptions{
		ClusterName:             "prod",
		IPFamily:                IPFamilyIPv4,
		DefaultContainerRuntime: RuntimeContainerd,
	}
}

func TestJoinOptionsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*JoinOptions)
		wantErr string
	}{
		{
			name:   "valid minimal",
			mutate: func(o *JoinOptions) {},
		},
		{
			name: "valid with service CIDR and dns IP",
			mutate: func(o *JoinOptions) {
				o.ServiceCIDR = "10.100.0.0/16"
				o.DNSClusterIP = "10.100.0.10"
			},
		},
		{
			name: "valid local cluster",
			mutate: func(o *JoinOptions) {
				o.IsLocalCluster = true
				o.ClusterID = "c7bd9b1c-7224-42bc-acde-a3f8d0c0a318"
			},
		},
		{
			name:    "missing cluster name",
			mutate:  func(o *JoinOptions) { o.ClusterName = "" },
			wantErr: "--cluster-name is required",
		},
		{
			name:    "local cluster without cluster ID",
			mutate:  func(o *JoinOptions) { o.IsLocalCluster = true },
			wantErr: "--cluster-id is required",
		},
		{
			name:    "bad ip family",
			mutate:  func(o *JoinOptions) { o.IPFamily = "dual" },
			wantErr: "invalid --ip-family",
		},
		{
			name:    "bad service CIDR",
			mutate:  func(o *JoinOptions) { o.ServiceCIDR = "10.100.0.0" },
			wantErr: "invalid --service-cidr",
		},
		{
			name:    "bad dns cluster IP",
			mutate:  func(o *JoinOptions) { o.DNSClusterIP = "10.100.0.10/32" },
			wantErr: "invalid --dns-cluster-ip",
		},
		{
			name:    "bad local disks",
			mutate:  func(o *JoinOptions) { o.LocalDisks = "raid10" },
			wantErr: "invalid --local-disks",
		},
		{
			name:    "bad runtime",
			mutate:  func(o *JoinOptions) { o.DefaultContainerRuntime = "docker" },
			wantErr: "invalid --default-container-runtime",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			opts := validJoinOptions()
			tc.mutate(&opts)

			err := opts.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestCalculateOptionsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    CalculateOptions
		wantErr string
	}{
		{
			name: "valid explicit type",
			opts: CalculateOptions{InstanceType: "c5.large", CNIVersion: "1.10.0"},
		},
		{
			name: "valid from IMDS",
			opts: CalculateOptions{InstanceTypeFromIMDS: true, CNIVersion: "1.10.0"},
		},
		{
			name:    "no instance type source",
			opts:    CalculateOptions{CNIVersion: "1.10.0"},
			wantErr: "one of --instance-type or --instance-type-from-imds is required",
		},
		{
			name:    "both instance type sources",
			opts:    CalculateOptions{InstanceType: "c5.large", InstanceTypeFromIMDS: true, CNIVersion: "1.10.0"},
			wantErr: "mutually exclusive",
		},
		{
			name:    "missing CNI version",
			opts:    CalculateOptions{InstanceType: "c5.large"},
			wantErr: "--cni-version is required",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.opts.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}
