package registry

import "fmt"

// Open returns the Store for driver ("file" or "bolt") at path.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "file":
		return NewFileStore(path)
	case "bolt":
		return NewBoltStore(path)
	default:
		return nil, fmt.Errorf("registry: unknown driver %q", driver)
	}
}
