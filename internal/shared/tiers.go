package shared

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/viper"

	"staysync/internal/domain"
)

type tierSection struct {
	RefreshIntervalMinutes uint64             `mapstructure:"refresh_interval_minutes"`
	Partitions             []domain.Partition `mapstructure:"partitions"`
}

// LoadTiers reads the demand-tier topology from a JSON config file (the
// basename comes from TIERS_CONFIG, "tiers" by default). Extra paths are for
// tests; "." and ".." cover running from the repo root or a cmd directory.
// Tiers come back sorted by interval, shortest cadence first.
func LoadTiers(name string, paths ...string) (domain.TierTable, error) {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		return domain.TierTable{}, fmt.Errorf("tiers config: %w", err)
	}

	var sections map[string]tierSection
	if err := v.UnmarshalKey("demand_tiers", &sections); err != nil {
		return domain.TierTable{}, fmt.Errorf("tiers config: %w", err)
	}
	if len(sections) == 0 {
		return domain.TierTable{}, fmt.Errorf("tiers config %q: no demand_tiers defined", name)
	}

	var table domain.TierTable
	for id, sec := range sections {
		if sec.RefreshIntervalMinutes == 0 {
			return domain.TierTable{}, fmt.Errorf("tiers config: tier %q has no refresh_interval_minutes", id)
		}
		tier := domain.Tier{
			ID:       id,
			Interval: time.Duration(sec.RefreshIntervalMinutes) * time.Minute,
		}
		for _, p := range sec.Partitions {
			if p.Name == "" {
				return domain.TierTable{}, fmt.Errorf("tiers config: tier %q has a partition without a name", id)
			}
			p.Tier = id
			tier.Partitions = append(tier.Partitions, p)
		}
		table.Tiers = append(table.Tiers, tier)
	}
	sort.Slice(table.Tiers, func(i, j int) bool {
		return table.Tiers[i].Interval < table.Tiers[j].Interval
	})
	return table, nil
}
