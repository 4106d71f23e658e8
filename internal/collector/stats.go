package collector

// BuildStats maps collector results onto the flat key set the cloud health
// API expects. Missing collectors are simply omitted from the map.
func BuildStats(results map[string]interface{}) map[string]interface{} {
	stats := make(map[string]interface{})

	if data, ok := results["uptime"]; ok {
		if uptime, ok := data.(int); ok {
			stats["uptime"] = uptime
		}
	}

	if data, ok := results["memory"]; ok {
		if mem, ok := data.(MemoryResult); ok {
			stats["freeHeap"] = mem.Available
			stats["totalMemory"] = mem.Total
			stats["memoryUsage"] = mem.UsedPercent
		}
	}

	if data, ok := results["cpu"]; ok {
		if usage, ok := data.(float64); ok {
			stats["cpuUsage"] = usage
		}
	}

	if data, ok := results["temperature"]; ok {
		if temp, ok := data.(float64); ok {
			stats["cpuTemp"] = temp
		}
	}

	return stats
}
