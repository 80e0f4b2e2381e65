package framework

import "github.com/ChuLiYu/drf-sim/pkg/types"

// Decliner 拒絕所有 offer
type Decliner struct {
	base
}

// NewDecliner 建立 Decliner
func NewDecliner(name types.FrameworkID, driver Driver, opts Options) *Decliner {
	return &Decliner{base: newBase(name, driver, opts)}
}

// Offer 一律拒絕
func (d *Decliner) Offer(offers []types.Offer) {
	for _, offer := range offers {
		d.stats.Offers++
		log.Debug("Framework declined offer", "framework", d.name, "agent", offer.Agent)
		d.decline(offer)
	}
}
