package config

// Default returns the built-in fleet used when no machine document exists.
func Default() *Document {
	return &Document{
		Version: CurrentVersion,
		Parameters: map[string]Range{
			"DrillingSpeed": {200, 6000},
			"Torque":        {2, 40},
			"BeltSpeed":     {0, 100},
			"Temperature":   {10, 2000},
			"Power":         {15, 50},
			"GasFlow":       {1, 10},
			"Pressure":      {0, 7},
			"Speed":         {0, 100},
		},
		Machines: []MachineDefinition{
			{
				Name: "DrillingMachine",
				ID:   1,
				Parameters: []ParameterSpec{
					{Parameter: "DrillingSpeed", Topic: "ZG/drilling/PLC/1/speed", Unit: "rpm"},
					{Parameter: "Torque", Topic: "ZG/drilling/PLC/1/torque", Unit: "kNm"},
					{Parameter: "BeltSpeed", Topic: "ZG/drilling/PLC/1/belt_speed", Unit: "%"},
					{Parameter: "Temperature", Topic: "ZG/drilling/PLC/1/temperature", Unit: "°C"},
				},
			},
			{
				Name: "SolderingMachine",
				ID:   2,
				Parameters: []ParameterSpec{
					{Parameter: "Power", Topic: "ZG/soldering/PLC/2/power", Unit: "W"},
					{Parameter: "BeltSpeed", Topic: "ZG/soldering/PLC/2/belt_speed", Unit: "%"},
					{Parameter: "Temperature", Topic: "ZG/soldering/PLC/2/temperature", Unit: "°C"},
					{Parameter: "Speed", Topic: "ZG/soldering/PLC/2/speed", Unit: "m/s"},
				},
			},
			{
				Name: "WeldingMachine",
				ID:   3,
				Parameters: []ParameterSpec{
					{Parameter: "GasFlow", Topic: "ZG/welding/PLC/3/gas_flow", Unit: "L/min"},
					{Parameter: "BeltSpeed", Topic: "ZG/welding/PLC/3/belt_speed", Unit: "%"},
					{Parameter: "Temperature", Topic: "ZG/welding/PLC/3/temperature", Unit: "°C"},
					{Parameter: "Speed", Topic: "ZG/welding/PLC/3/speed", Unit: "%"},
				},
			},
			{
				Name: "AssemblyMachine",
				ID:   4,
				Parameters: []ParameterSpec{
					{Parameter: "Pressure", Topic: "ZG/assemble/PLC/4/pressure", Unit: "Pa"},
					{Parameter: "BeltSpeed", Topic: "ZG/assemble/PLC/4/belt_speed", Unit: "%"},
					{Parameter: "Speed", Topic: "ZG/assemble/PLC/4/speed", Unit: "%"},
				},
			},
		},
	}
}
