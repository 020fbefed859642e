// Package drift computes the structural comparison between a live response
// and the mock that would have matched the same request, shared by the
// normal and outgoing proxies (§4.6 step 4, §4.7). Comparison covers status
// code, headers (modulo a configurable ignore-set), and body; JSON bodies
// are compared field-wise with arrays compared by index.
package drift

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"wiretap/pkg/model"
)

// DefaultIgnoredHeaders are header names that vary request-to-request
// without signaling a real behavioral difference.
var DefaultIgnoredHeaders = []string{"Date", "X-Request-Id", "X-Wiretap-Mock"}

// Compare builds a DriftReport for a mock that matched the request but was
// not served, against the response actually observed live.
func Compare(mock model.Mock, live model.Response, ignoredHeaders []string) model.DriftReport {
	var diffs []model.Difference

	if mock.StatusCode != live.StatusCode {
		diffs = append(diffs, model.Difference{
			Path:     "$.status_code",
			Expected: mock.StatusCode,
			Actual:   live.StatusCode,
			Kind:     model.DifferenceStatus,
		})
	}

	diffs = append(diffs, compareHeaders(mock.Headers, live.Headers, ignoredHeaders)...)
	diffs = append(diffs, compareBody(mock.Body, live.Body)...)

	report := model.DriftReport{
		HasDifferences: len(diffs) > 0,
		Differences:    diffs,
	}
	if report.HasDifferences {
		report.Summary = fmt.Sprintf("%d difference(s) between mock and live response", len(diffs))
	} else {
		report.Summary = "live response matches stored mock"
	}
	return report
}

func ignoredSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		names = DefaultIgnoredHeaders
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = struct{}{}
	}
	return set
}

func compareHeaders(expected, actual map[string]string, ignoredHeaders []string) []model.Difference {
	ignored := ignoredSet(ignoredHeaders)
	var diffs []model.Difference

	names := make(map[string]struct{}, len(expected)+len(actual))
	for k := range expected {
		names[k] = struct{}{}
	}
	for k := range actual {
		names[k] = struct{}{}
	}

	sorted := make([]string, 0, len(names))
	for k := range names {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, name := range sorted {
		if _, skip := ignored[strings.ToLower(name)]; skip {
			continue
		}
		ev, eok := expected[name]
		av, aok := actual[name]
		if eok != aok || ev != av {
			diffs = append(diffs, model.Difference{
				Path:     "$.headers." + name,
				Expected: valueOrNil(eok, ev),
				Actual:   valueOrNil(aok, av),
				Kind:     model.DifferenceHeader,
			})
		}
	}
	return diffs
}

func valueOrNil(present bool, v string) any {
	if !present {
		return nil
	}
	return v
}

func compareBody(expected, actual string) []model.Difference {
	var expectedJSON, actualJSON any
	expectedErr := json.Unmarshal([]byte(expected), &expectedJSON)
	actualErr := json.Unmarshal([]byte(actual), &actualJSON)

	if expectedErr == nil && actualErr == nil {
		return compareJSONValue("$", expectedJSON, actualJSON)
	}

	if expected != actual {
		return []model.Difference{{
			Path:     "$.body",
			Expected: expected,
			Actual:   actual,
			Kind:     model.DifferenceValue,
		}}
	}
	return nil
}

func compareJSONValue(path string, expected, actual any) []model.Difference {
	if expected == nil && actual == nil {
		return nil
	}

	expectedObj, eIsObj := expected.(map[string]any)
	actualObj, aIsObj := actual.(map[string]any)
	if eIsObj && aIsObj {
		return compareJSONObject(path, expectedObj, actualObj)
	}

	expectedArr, eIsArr := expected.([]any)
	actualArr, aIsArr := actual.([]any)
	if eIsArr && aIsArr {
		return compareJSONArray(path, expectedArr, actualArr)
	}

	if eIsObj != aIsObj || eIsArr != aIsArr {
		return []model.Difference{{Path: path, Expected: expected, Actual: actual, Kind: model.DifferenceType}}
	}

	if fmt.Sprint(expected) != fmt.Sprint(actual) {
		return []model.Difference{{Path: path, Expected: expected, Actual: actual, Kind: model.DifferenceValue}}
	}
	return nil
}

func compareJSONObject(path string, expected, actual map[string]any) []model.Difference {
	var diffs []model.Difference

	keys := make(map[string]struct{}, len(expected)+len(actual))
	for k := range expected {
		keys[k] = struct{}{}
	}
	for k := range actual {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		childPath := path + "." + k
		ev, eok := expected[k]
		av, aok := actual[k]
		switch {
		case eok && !aok:
			diffs = append(diffs, model.Difference{Path: childPath, Expected: ev, Actual: nil, Kind: model.DifferenceShape})
		case !eok && aok:
			diffs = append(diffs, model.Difference{Path: childPath, Expected: nil, Actual: av, Kind: model.DifferenceShape})
		default:
			diffs = append(diffs, compareJSONValue(childPath, ev, av)...)
		}
	}
	return diffs
}

func compareJSONArray(path string, expected, actual []any) []model.Difference {
	var diffs []model.Difference

	if len(expected) != len(actual) {
		diffs = append(diffs, model.Difference{
			Path:     path + ".length",
			Expected: len(expected),
			Actual:   len(actual),
			Kind:     model.DifferenceShape,
		})
	}

	n := len(expected)
	if len(actual) < n {
		n = len(actual)
	}
	for i := 0; i < n; i++ {
		diffs = append(diffs, compareJSONValue(fmt.Sprintf("%s[%d]", path, i), expected[i], actual[i])...)
	}
	return diffs
}
