// Package catalog holds the static government-services reference data:
// ministry → service → sub-type with fees and bilingual labels.
// Read-only; lookups never fail on unknown keys, they fall back.
package catalog

import "github.com/absherpay/absher-bfa-go/internal/domain"

// SubType is one priced variant of a government service.
type SubType struct {
	Key   string
	Label domain.BilingualLabel
	Fee   float64
}

// Service is a payable government service under a ministry.
type Service struct {
	Key      string
	Label    domain.BilingualLabel
	Fee      float64 // base fee when no sub-type applies
	Icon     string
	SubTypes []SubType
}

// Ministry groups services under one issuing authority.
type Ministry struct {
	Key      string
	Label    domain.BilingualLabel
	Services []Service
}

// fallbackIcon is returned for any unrecognized service type.
const fallbackIcon = "government-generic"

var ministries = []Ministry{
	{
		Key:   "moi",
		Label: domain.BilingualLabel{Ar: "وزارة الداخلية", En: "Ministry of Interior"},
		Services: []Service{
			{
				Key:   "traffic_violation",
				Label: domain.BilingualLabel{Ar: "مخالفة مرورية", En: "Traffic Violation"},
				Fee:   150,
				Icon:  "traffic",
				SubTypes: []SubType{
					{Key: "speeding", Label: domain.BilingualLabel{Ar: "تجاوز السرعة", En: "Speeding"}, Fee: 300},
					{Key: "parking", Label: domain.BilingualLabel{Ar: "وقوف خاطئ", En: "Illegal Parking"}, Fee: 100},
					{Key: "red_light", Label: domain.BilingualLabel{Ar: "قطع إشارة", En: "Red Light"}, Fee: 3000},
				},
			},
			{
				Key:   "passport_renewal",
				Label: domain.BilingualLabel{Ar: "تجديد جواز السفر", En: "Passport Renewal"},
				Fee:   300,
				Icon:  "passport",
				SubTypes: []SubType{
					{Key: "five_years", Label: domain.BilingualLabel{Ar: "خمس سنوات", En: "Five Years"}, Fee: 300},
					{Key: "ten_years", Label: domain.BilingualLabel{Ar: "عشر سنوات", En: "Ten Years"}, Fee: 600},
				},
			},
			{
				Key:   "id_renewal",
				Label: domain.BilingualLabel{Ar: "تجديد الهوية الوطنية", En: "National ID Renewal"},
				Fee:   100,
				Icon:  "id-card",
			},
			{
				Key:   "driving_license",
				Label: domain.BilingualLabel{Ar: "رخصة قيادة", En: "Driving License"},
				Fee:   200,
				Icon:  "license",
				SubTypes: []SubType{
					{Key: "issue", Label: domain.BilingualLabel{Ar: "إصدار", En: "Issue"}, Fee: 400},
					{Key: "renewal", Label: domain.BilingualLabel{Ar: "تجديد", En: "Renewal"}, Fee: 200},
				},
			},
		},
	},
	{
		Key:   "mol",
		Label: domain.BilingualLabel{Ar: "وزارة العمل", En: "Ministry of Labor"},
		Services: []Service{
			{
				Key:   "work_permit",
				Label: domain.BilingualLabel{Ar: "رخصة عمل", En: "Work Permit"},
				Fee:   9600,
				Icon:  "work-permit",
			},
			{
				Key:   "iqama_renewal",
				Label: domain.BilingualLabel{Ar: "تجديد الإقامة", En: "Iqama Renewal"},
				Fee:   650,
				Icon:  "residency",
			},
		},
	},
	{
		Key:   "moc",
		Label: domain.BilingualLabel{Ar: "وزارة التجارة", En: "Ministry of Commerce"},
		Services: []Service{
			{
				Key:   "commercial_registration",
				Label: domain.BilingualLabel{Ar: "السجل التجاري", En: "Commercial Registration"},
				Fee:   200,
				Icon:  "commerce",
				SubTypes: []SubType{
					{Key: "issue", Label: domain.BilingualLabel{Ar: "إصدار", En: "Issue"}, Fee: 800},
					{Key: "renewal", Label: domain.BilingualLabel{Ar: "تجديد", En: "Renewal"}, Fee: 200},
				},
			},
			{
				Key:   "trademark",
				Label: domain.BilingualLabel{Ar: "علامة تجارية", En: "Trademark"},
				Fee:   1000,
				Icon:  "trademark",
			},
		},
	},
	{
		Key:   "moj",
		Label: domain.BilingualLabel{Ar: "وزارة العدل", En: "Ministry of Justice"},
		Services: []Service{
			{
				Key:   "court_fees",
				Label: domain.BilingualLabel{Ar: "رسوم قضائية", En: "Court Fees"},
				Fee:   500,
				Icon:  "justice",
			},
			{
				Key:   "notary",
				Label: domain.BilingualLabel{Ar: "كاتب عدل", En: "Notary"},
				Fee:   50,
				Icon:  "notary",
			},
		},
	},
	{
		Key:   "municipal",
		Label: domain.BilingualLabel{Ar: "البلدية", En: "Municipality"},
		Services: []Service{
			{
				Key:   "municipal_license",
				Label: domain.BilingualLabel{Ar: "رخصة بلدية", En: "Municipal License"},
				Fee:   1200,
				Icon:  "municipality",
			},
			{
				Key:   "municipal_violation",
				Label: domain.BilingualLabel{Ar: "مخالفة بلدية", En: "Municipal Violation"},
				Fee:   500,
				Icon:  "municipality",
			},
		},
	},
}

// serviceIndex and ministryByService are built once at init for O(1) lookups.
var (
	serviceIndex      = map[string]*Service{}
	ministryByService = map[string]*Ministry{}
)

func init() {
	for i := range ministries {
		m := &ministries[i]
		for j := range m.Services {
			s := &m.Services[j]
			serviceIndex[s.Key] = s
			ministryByService[s.Key] = m
		}
	}
}

// Ministries returns the full catalog in declaration order.
func Ministries() []Ministry {
	return ministries
}

// ServiceTypes returns all known service-type keys.
func ServiceTypes() []string {
	keys := make([]string, 0, len(serviceIndex))
	for _, m := range ministries {
		for _, s := range m.Services {
			keys = append(keys, s.Key)
		}
	}
	return keys
}

// ServiceFee returns the fee for a service type and optional sub-type.
// Unknown keys return 0 rather than erroring.
func ServiceFee(serviceType, subType string) float64 {
	s, ok := serviceIndex[serviceType]
	if !ok {
		return 0
	}
	if subType != "" {
		for _, st := range s.SubTypes {
			if st.Key == subType {
				return st.Fee
			}
		}
	}
	return s.Fee
}

// ServiceLabel returns the bilingual label for a service type, falling back
// to the raw key when unrecognized.
func ServiceLabel(serviceType string) domain.BilingualLabel {
	if s, ok := serviceIndex[serviceType]; ok {
		return s.Label
	}
	return domain.BilingualLabel{Ar: serviceType, En: serviceType}
}

// MinistryLabel returns the bilingual label of the ministry owning a service
// type, falling back to a generic label when unrecognized.
func MinistryLabel(serviceType string) domain.BilingualLabel {
	if m, ok := ministryByService[serviceType]; ok {
		return m.Label
	}
	return domain.BilingualLabel{Ar: "جهة حكومية", En: "Government Entity"}
}

// IconFor maps a service type to its icon identifier with a fixed fallback.
// Never errors on unknown keys.
func IconFor(serviceType string) string {
	if s, ok := serviceIndex[serviceType]; ok && s.Icon != "" {
		return s.Icon
	}
	return fallbackIcon
}
