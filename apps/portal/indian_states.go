package main

import "strings"

type indianState struct {
	Name string
	Code string
	// Kind is "state" or "ut".
	Kind string
}

var indianStates = []indianState{
	{"Andhra Pradesh", "AP", "state"},
	{"Arunachal Pradesh", "AR", "state"},
	{"Assam", "AS", "state"},
	{"Bihar", "BR", "state"},
	{"Chhattisgarh", "CG", "state"},
	{"Goa", "GA", "state"},
	{"Gujarat", "GJ", "state"},
	{"Haryana", "HR", "state"},
	{"Himachal Pradesh", "HP", "state"},
	{"Jharkhand", "JH", "state"},
	{"Karnataka", "KA", "state"},
	{"Kerala", "KL", "state"},
	{"Madhya Pradesh", "MP", "state"},
	{"Maharashtra", "MH", "state"},
	{"Manipur", "MN", "state"},
	{"Meghalaya", "ML", "state"},
	{"Mizoram", "MZ", "state"},
	{"Nagaland", "NL", "state"},
	{"Odisha", "OD", "state"},
	{"Punjab", "PB", "state"},
	{"Rajasthan", "RJ", "state"},
	{"Sikkim", "SK", "state"},
	{"Tamil Nadu", "TN", "state"},
	{"Telangana", "TS", "state"},
	{"Tripura", "TR", "state"},
	{"Uttar Pradesh", "UP", "state"},
	{"Uttarakhand", "UK", "state"},
	{"West Bengal", "WB", "state"},
	{"Andaman and Nicobar Islands", "AN", "ut"},
	{"Chandigarh", "CH", "ut"},
	{"Dadra and Nagar Haveli and Daman and Diu", "DH", "ut"},
	{"Delhi", "DL", "ut"},
	{"Jammu and Kashmir", "JK", "ut"},
	{"Ladakh", "LA", "ut"},
	{"Lakshadweep", "LD", "ut"},
	{"Puducherry", "PY", "ut"},
}

// Older and official long names that geocoders still return.
var indianStateAliases = map[string]string{
	"orissa":                              "Odisha",
	"uttaranchal":                         "Uttarakhand",
	"pondicherry":                         "Puducherry",
	"nct of delhi":                        "Delhi",
	"national capital territory of delhi": "Delhi",
	"andaman & nicobar islands":           "Andaman and Nicobar Islands",
	"jammu & kashmir":                     "Jammu and Kashmir",
	"dadra and nagar haveli":              "Dadra and Nagar Haveli and Daman and Diu",
	"daman and diu":                       "Dadra and Nagar Haveli and Daman and Diu",
}

func indianStateNames() []string {
	names := make([]string, 0, len(indianStates))
	for _, state := range indianStates {
		names = append(names, state.Name)
	}
	return names
}

// canonicalStateName maps a state name in any casing, or a known alias, to the
// name used in the intake dropdown. Unknown names return "".
func canonicalStateName(raw string) string {
	needle := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	if needle == "" {
		return ""
	}
	for _, state := range indianStates {
		if strings.ToLower(state.Name) == needle {
			return state.Name
		}
	}
	return indianStateAliases[needle]
}

func isIndianState(raw string) bool {
	return canonicalStateName(raw) != ""
}
