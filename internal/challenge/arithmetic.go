package challenge

import (
	"fmt"
	"strconv"
)

type Operator string

const (
	OpAdd      Operator = "+"
	OpSubtract Operator = "-"
	OpMultiply Operator = "×"
	OpDivide   Operator = "÷"
)

var operators = []Operator{OpAdd, OpSubtract, OpMultiply, OpDivide}

type Arithmetic struct {
	A, B    int
	Op      Operator
	Result  int
	Options []int
}

func (c *Arithmetic) Kind() Kind { return KindArithmetic }

func (c *Arithmetic) Question() string {
	return fmt.Sprintf("%d%s%d=?", c.A, c.Op, c.B)
}

func (c *Arithmetic) Answer() string {
	return strconv.Itoa(c.Result)
}

func (c *Arithmetic) Choices() []string {
	res := make([]string, len(c.Options))
	for i, v := range c.Options {
		res[i] = strconv.Itoa(v)
	}
	return res
}

func (g *Generator) newArithmetic() *Arithmetic {
	c := &Arithmetic{Op: operators[g.rnd.Intn(len(operators))]}

	switch c.Op {
	case OpAdd, OpSubtract:
		a, b := g.rnd.Intn(51), g.rnd.Intn(51)
		if a < b {
			a, b = b, a
		}
		c.A, c.B = a, b
		if c.Op == OpAdd {
			c.Result = a + b
		} else {
			c.Result = a - b
		}
	case OpMultiply:
		c.A, c.B = g.rnd.Intn(10), g.rnd.Intn(10)
		c.Result = c.A * c.B
	case OpDivide:
		quotient, divisor := g.rnd.Intn(10), 1+g.rnd.Intn(9)
		c.A, c.B = quotient*divisor, divisor
		c.Result = quotient
	}

	options := g.rnd.Perm(100)[:ChoicesCount]
	if indexOf(options, c.Result) < 0 {
		options[0] = c.Result
	}
	g.rnd.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })
	// Some bots blindly press the first button.
	if options[0] == c.Result {
		options[0], options[1] = options[1], options[0]
	}
	c.Options = options
	return c
}

func indexOf(values []int, v int) int {
	for i, x := range values {
		if x == v {
			return i
		}
	}
	return -1
}
