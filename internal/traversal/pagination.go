package traversal

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
)

// PageRef is a discovered page of a paginated listing.
type PageRef struct {
	Num int
	URL string
}

// PageNumbers extracts every param=N value from hrefs, drops duplicates, and
// returns them in ascending numeric order.
func PageNumbers(hrefs []string, param string) []int {
	re := regexp.MustCompile(regexp.QuoteMeta(param) + `=(\d+)`)
	seen := make(map[int]struct{}, len(hrefs))
	nums := make([]int, 0, len(hrefs))
	for _, href := range hrefs {
		m := re.FindStringSubmatch(href)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// PageURL resolves ?param=num against base, keeping base's path.
func PageURL(base, param string, num int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := url.Values{}
	q.Set(param, strconv.Itoa(num))
	return u.ResolveReference(&url.URL{RawQuery: q.Encode()}).String(), nil
}

// pageOf returns the page number encoded in rawURL, or 1 when absent.
func pageOf(rawURL, param string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 1
	}
	n, err := strconv.Atoi(u.Query().Get(param))
	if err != nil || n < 1 {
		return 1
	}
	return n
}
