package domain

import "github.com/dustin/go-humanize"

type QuotaInfo struct {
	TotalSpace     int64   `json:"total_space"`
	UsedSpace      int64   `json:"used_space"`
	AvailableSpace int64   `json:"available_space"`
	UsagePercent   float64 `json:"usage_percent"`
	Summary        string  `json:"summary"`
}

func NewQuotaInfo(u *User) *QuotaInfo {
	available := u.StorageLimit - u.StorageUsed
	if available < 0 {
		available = 0
	}

	var percent float64
	if u.StorageLimit > 0 {
		percent = float64(u.StorageUsed) / float64(u.StorageLimit) * 100
	}

	return &QuotaInfo{
		TotalSpace:     u.StorageLimit,
		UsedSpace:      u.StorageUsed,
		AvailableSpace: available,
		UsagePercent:   percent,
		Summary: humanize.IBytes(uint64(u.StorageUsed)) + " of " +
			humanize.IBytes(uint64(u.StorageLimit)) + " used",
	}
}
