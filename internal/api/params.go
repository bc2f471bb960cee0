package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	xerrors "meteorite-explorer/internal/errors"
	"meteorite-explorer/internal/meteorite"
)

func invalidParam(name, raw, want string) error {
	return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("query parameter %s=%q is not %s", name, raw, want))
}

func intParam(q url.Values, name string) (int, bool, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, invalidParam(name, raw, "an integer")
	}
	return v, true, nil
}

func floatParam(q url.Values, name string) (*float64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, invalidParam(name, raw, "a number")
	}
	return &v, nil
}

// pageParams reads page, size and any number of sort=property[,direction].
func pageParams(q url.Values) (meteorite.PageRequest, error) {
	var req meteorite.PageRequest
	page, _, err := intParam(q, "page")
	if err != nil {
		return req, err
	}
	size, _, err := intParam(q, "size")
	if err != nil {
		return req, err
	}
	req.Page, req.Size = page, size
	for _, raw := range q["sort"] {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		order, err := meteorite.ParseSort(raw)
		if err != nil {
			return req, err
		}
		req.Sort = append(req.Sort, order)
	}
	return req, nil
}

func filterParams(q url.Values) (meteorite.Filter, error) {
	filter := meteorite.Filter{
		Name:     q.Get("name"),
		RecClass: q.Get("recclass"),
		Fall:     q.Get("fall"),
	}
	year, ok, err := intParam(q, "year")
	if err != nil {
		return filter, err
	}
	if ok {
		filter.Year = &year
	}
	if filter.MinMass, err = floatParam(q, "minMass"); err != nil {
		return filter, err
	}
	if filter.MaxMass, err = floatParam(q, "maxMass"); err != nil {
		return filter, err
	}
	return filter, nil
}
