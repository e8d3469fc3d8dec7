package settings

const CmdName = "waitprof"

const DefaultOutputDir = "."
