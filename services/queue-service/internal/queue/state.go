package queue

// DefaultAvgServiceMinutes is the per-turn estimate used when a queue has
// no configured average.
const DefaultAvgServiceMinutes = 15

// Position counts the waiting turns ahead of number. Zero means the turn
// is next in line.
func Position(waitingNumbers []int, number int) int {
	ahead := 0
	for _, n := range waitingNumbers {
		if n < number {
			ahead++
		}
	}
	return ahead
}

// ETAMinutes estimates the wait for a turn at the given position as
// position x average service time. Position zero is next and waits zero
// estimated minutes.
func ETAMinutes(position int, avgServiceMinutes int) int {
	if avgServiceMinutes <= 0 {
		avgServiceMinutes = DefaultAvgServiceMinutes
	}
	if position < 0 {
		position = 0
	}
	return position * avgServiceMinutes
}

// NextNumber is the number the next issued turn receives: one past the
// highest outstanding number, starting at 1 on an empty queue.
func NextNumber(outstanding []int) int {
	max := 0
	for _, n := range outstanding {
		if n > max {
			max = n
		}
	}
	return max + 1
}
