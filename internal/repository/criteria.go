package repository

import "strings"

// criteria builds an AND-ed WHERE clause with positional arguments.
type criteria struct {
	clauses []string
	args    []interface{}
}

func (c *criteria) add(clause string, args ...interface{}) *criteria {
	c.clauses = append(c.clauses, clause)
	c.args = append(c.args, args...)
	return c
}

// equal matches column against value, or against NULL when value is nil.
func (c *criteria) equal(column string, value *string) *criteria {
	if value == nil {
		return c.add(column + " IS NULL")
	}
	return c.add(column+" = ?", *value)
}

// postCode matches rows without a post code as well as rows with the given one.
func (c *criteria) postCode(value *string) *criteria {
	if value == nil {
		return c.add("post_code IS NULL")
	}
	return c.add("(post_code IS NULL OR post_code = ?)", *value)
}

func (c *criteria) String() string {
	return strings.Join(c.clauses, " AND ")
}
